package schema

import (
	"encoding/xml"
	"fmt"

	"github.com/xmlkit-go/xmlkit/internal/dependency"
	"github.com/xmlkit-go/xmlkit/internal/ordered"
	"github.com/xmlkit-go/xmlkit/qname"
)

// Grammar is the arena owning every type, element, attribute-group, and
// group declared across one or more schema documents composing a
// single composite grammar. Types reference each other by canonical
// name (name handles resolved through this table), not by direct
// pointer, so that the cyclic references common between a base type and
// its derived types never require a cyclic Go pointer graph.
//
// A Grammar is mutated only while the schema parser's handler has the
// corresponding declaration on its element stack; it is frozen (made
// safe to read concurrently, without locking) once Freeze succeeds.
type Grammar struct {
	validating bool
	frozen     bool

	types      map[string]Type
	elements   map[string]*ElementDecl
	groups     map[string]*Group
	attrGroups map[string]*AttributeGroup

	// targetNS lists target namespaces of loaded schema documents;
	// nothing in this package writes or reads it.
	targetNS []string
}

// NewGrammar creates an empty, mutable Grammar.
func NewGrammar(validating bool) *Grammar {
	return &Grammar{
		validating: validating,
		types:      make(map[string]Type),
		elements:   make(map[string]*ElementDecl),
		groups:     make(map[string]*Group),
		attrGroups: make(map[string]*AttributeGroup),
	}
}

func (g *Grammar) Validating() bool { return g.validating }

// FindType looks up a type by canonical name, first checking built-ins.
func (g *Grammar) FindType(name xml.Name) (Type, bool) {
	if b, ok := ParseBuiltin(name); ok {
		return b, true
	}
	t, ok := g.types[qname.Clark(name)]
	return t, ok
}

// addType inserts t into the arena. Per invariant I6, an element
// declaration and a type definition never share a canonical key, so
// types and elements live in separate maps even though both are keyed
// by the same Clark-notation scheme.
func (g *Grammar) addType(t Type) {
	g.types[qname.Clark(t.XMLName())] = t
}

func (g *Grammar) addElement(e *ElementDecl) {
	g.elements[qname.Clark(e.Name)] = e
}

func (g *Grammar) addGroup(grp *Group) {
	g.groups[qname.Clark(grp.Name)] = grp
}

func (g *Grammar) addAttrGroup(ag *AttributeGroup) {
	g.attrGroups[qname.Clark(ag.Name)] = ag
}

// ElementDecl looks up an element declaration by canonical name; local
// declarations are registered under the same keys as top-level ones.
func (g *Grammar) ElementDecl(name xml.Name) (*ElementDecl, bool) {
	e, ok := g.elements[qname.Clark(name)]
	return e, ok
}

// Freeze finishes loading: it verifies invariant I5 (the type
// inheritance graph is acyclic) and invariant I4 (every non-built-in
// type reference resolves), then marks the grammar immutable. Freeze
// is idempotent; calling it twice is a no-op once the first call
// succeeds.
func (g *Grammar) Freeze() error {
	if g.frozen {
		return nil
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	if err := g.checkResolved(); err != nil {
		if g.validating {
			return err
		}
	}
	g.frozen = true
	return nil
}

// checkAcyclic implements invariant I5: the type-inheritance graph is
// acyclic. Per the design notes, the cyclic-reference problem between a
// base type and its derived types is modeled as a name-addressed graph
// rather than a cyclic Go pointer structure; building it is a one-edge-
// per-type walk over Base references, and the cycle check itself is
// internal/dependency.Graph.Acyclic, the same DFS a build tool uses to
// reject circular target dependencies.
func (g *Grammar) checkAcyclic() error {
	var graph dependency.Graph
	ordered.RangeStrings(g.types, func(key string) {
		t := g.types[key]
		var baseKey string
		switch v := t.(type) {
		case *ComplexType:
			if v.Base != (xml.Name{}) {
				baseKey = qname.Clark(v.Base)
			}
		case *SimpleType:
			if v.Base != (xml.Name{}) {
				baseKey = qname.Clark(v.Base)
			}
		}
		graph.Add(key, "") // register key as a root even when it has no base
		if baseKey != "" {
			if _, isBuiltin := ParseBuiltin(qname.ParseClark(baseKey)); !isBuiltin {
				graph.Add(key, baseKey)
			}
		}
	})
	if bad, ok := graph.Acyclic(); !ok {
		return &SchemaLoadError{Message: "type inheritance cycle detected at " + bad}
	}
	return nil
}

// checkResolved implements invariant I4: every non-built-in type
// reference must resolve within the grammar once loading completes.
// Map iteration in Go is randomized per-run, so which unresolved
// reference is reported first would otherwise be nondeterministic
// (violating P4); ordered.RangeStrings walks g.types and g.elements in
// sorted key order so the same grammar always reports the same first
// fault.
func (g *Grammar) checkResolved() error {
	var first error
	fail := func(name xml.Name) {
		if first == nil {
			first = &UnresolvedReference{Kind: "type", Name: fmt.Sprint(name)}
		}
	}
	ordered.RangeStrings(g.types, func(key string) {
		switch v := g.types[key].(type) {
		case *ComplexType:
			if v.Base != (xml.Name{}) {
				if _, ok := g.FindType(v.Base); !ok {
					fail(v.Base)
				}
			}
			for _, a := range v.Attributes {
				if a.Type != (xml.Name{}) {
					if _, ok := g.FindType(a.Type); !ok {
						fail(a.Type)
					}
				}
			}
		case *SimpleType:
			if v.Base != (xml.Name{}) {
				if _, ok := g.FindType(v.Base); !ok {
					fail(v.Base)
				}
			}
		}
	})
	ordered.RangeStrings(g.elements, func(key string) {
		e := g.elements[key]
		if e.Type != (xml.Name{}) {
			if _, ok := g.FindType(e.Type); !ok {
				fail(e.Type)
			}
		}
	})
	return first
}
