// Package ordered provides ordered, deterministic traversal of maps.
package ordered

import (
	"reflect"
	"sort"
)

// RangeStrings calls fn on each string key in v in deterministic (sorted)
// order. It panics if v is not a map; a key of a non-string type is
// passed as reflect's placeholder text for it, such as "<int Value>".
func RangeStrings(v interface{}, fn func(string)) {
	val := reflect.ValueOf(v)
	keys := make([]string, 0, val.Len())
	for _, k := range val.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(k)
	}
}
