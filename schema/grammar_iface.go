package schema

import (
	"encoding/xml"
	"fmt"

	"github.com/xmlkit-go/xmlkit/grammar"
)

// Element implements grammar.Grammar: it looks up a top-level element
// declaration and resolves its type into the shared ElementInfo shape
// the validator understands, regardless of whether the type is a
// Builtin, a SimpleType, or a ComplexType.
func (g *Grammar) Element(name xml.Name) (grammar.ElementInfo, bool) {
	decl, ok := g.ElementDecl(name)
	if !ok {
		return grammar.ElementInfo{}, false
	}
	t := decl.TypeInline
	if t == nil && decl.Type != (xml.Name{}) {
		t, _ = g.FindType(decl.Type)
	}
	info := grammar.ElementInfo{Name: decl.Name}
	switch v := t.(type) {
	case *ComplexType:
		info.Content = v.Content
		info.Model = v.Model
		info.Attributes = v.Attributes
		info.AnyAttribute = v.AnyAttribute
	case *SimpleType:
		info.Content = grammar.ContentSimple
		info.SimpleTypeName = v.Name
	case Builtin:
		info.Content = grammar.ContentSimple
		info.SimpleTypeName = v.Name()
	default:
		info.Content = grammar.ContentSimple
	}
	return info, true
}

// AnyElementAllowed reports whether ancestor's complex type declares an
// Any wildcard broad enough to admit name. It is consulted by the
// validator only once a direct element lookup has already failed.
func (g *Grammar) AnyElementAllowed(ancestor, name xml.Name) bool {
	decl, ok := g.ElementDecl(ancestor)
	if !ok {
		return false
	}
	t := decl.TypeInline
	if t == nil && decl.Type != (xml.Name{}) {
		t, _ = g.FindType(decl.Type)
	}
	ct, ok := t.(*ComplexType)
	if !ok || ct.Model == nil {
		return false
	}
	return particleAdmitsWildcard(ct.Model, name)
}

func particleAdmitsWildcard(p grammar.Particle, name xml.Name) bool {
	switch v := p.(type) {
	case grammar.AnyParticle:
		return wildcardMatches(v.Namespace, name)
	case grammar.SequenceParticle:
		for _, c := range v.Children {
			if particleAdmitsWildcard(c, name) {
				return true
			}
		}
	case grammar.ChoiceParticle:
		for _, c := range v.Children {
			if particleAdmitsWildcard(c, name) {
				return true
			}
		}
	case grammar.AllParticle:
		return false
	}
	return false
}

func wildcardMatches(namespace string, name xml.Name) bool {
	return grammar.WildcardMatches(namespace, name)
}

func splitList(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, s[start:i])
			start = -1
		}
	}
	return out
}

// ValidateValue validates value against the simple type named typeName,
// applying custom built-in checks first (which can short-circuit), then
// the type's facet list in declaration order.
func (g *Grammar) ValidateValue(typeName xml.Name, value string) error {
	t, ok := g.FindType(typeName)
	if !ok {
		return &UnresolvedReference{Kind: "type", Name: typeName.Local}
	}
	return g.validateAgainst(t, value)
}

func (g *Grammar) validateAgainst(t Type, value string) error {
	switch v := t.(type) {
	case Builtin:
		return ValidateBuiltin(v, value)
	case *SimpleType:
		return g.validateSimpleType(v, value)
	default:
		return nil
	}
}

func (g *Grammar) validateSimpleType(st *SimpleType, value string) error {
	switch st.Variety {
	case List:
		for _, tok := range splitList(value) {
			itemType, ok := g.FindType(st.ItemType)
			if !ok {
				return &UnresolvedReference{Kind: "type", Name: st.ItemType.Local}
			}
			if err := g.validateAgainst(itemType, tok); err != nil {
				return err
			}
		}
		return nil
	case Union:
		var lastErr error
		for _, mName := range st.MemberTypes {
			mType, ok := g.FindType(mName)
			if !ok {
				continue
			}
			if err := g.validateAgainst(mType, value); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr == nil {
			lastErr = &SchemaLoadError{Message: "union " + st.Name.Local + " has no usable member types"}
		}
		return lastErr
	default:
		if st.Base != (xml.Name{}) {
			base, ok := g.FindType(st.Base)
			if !ok {
				return &UnresolvedReference{Kind: "type", Name: st.Base.Local}
			}
			if err := g.validateAgainst(base, value); err != nil {
				return err
			}
		}
		if err := validateEnumeration(st.Facets, value); err != nil {
			return err
		}
		return ApplyFacets(st.Facets, value)
	}
}

// validateEnumeration checks value against a SimpleType's enumeration
// facet, if it declares one. Unlike the other facets, enumeration is a
// set rather than a single constraint, so it cannot be folded into
// ApplyFacets' one-facet-at-a-time loop: a value is valid if it matches
// ANY enumeration entry, not every one.
func validateEnumeration(facets []Facet, value string) error {
	var values []string
	for _, f := range facets {
		if f.Kind == FacetEnumeration {
			values = append(values, f.Value)
			if f.Value == value {
				return nil
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	return fmt.Errorf("value %q is not one of the enumerated values %v", value, values)
}
