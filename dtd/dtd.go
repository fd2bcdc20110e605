// Package dtd implements the minimal Document Type Definition grammar
// the composite validator needs: element and attribute-list
// declarations and a general-entity table, parsed from a DOCTYPE's
// internal subset (or an external subset fetched through a catalog).
// It deliberately does not implement parameter-entity expansion inside
// markup declarations or XML Schema-style facet validation, and it does
// not recognize conditional (INCLUDE/IGNORE) sections: Parse reports one
// as an unrecognized markup declaration.
package dtd

import (
	"encoding/xml"
	"fmt"

	"github.com/xmlkit-go/xmlkit/grammar"
)

// SchemaLoadError reports a malformed DTD declaration. In strict mode
// this is fatal to the grammar load; in lax mode the offending
// declaration is dropped (see Parse's lax parameter).
type SchemaLoadError struct {
	Message string
}

func (e *SchemaLoadError) Error() string { return "dtd: " + e.Message }

// ElementDecl is a single <!ELEMENT> declaration.
type ElementDecl struct {
	Name    xml.Name
	Content grammar.ContentKind
	Model   grammar.Particle
}

// AttlistDecl is the attribute table declared by one or more <!ATTLIST>
// declarations for a single element.
type AttlistDecl struct {
	Element xml.Name
	Attrs   []grammar.AttributeDecl
}

// Grammar is a parsed DTD: element declarations, attribute lists, and
// the general entity table. It implements grammar.Grammar so the
// validator can drive it exactly as it drives an XML Schema grammar.
type Grammar struct {
	validating bool
	elements   map[xml.Name]ElementDecl
	attlists   map[xml.Name][]grammar.AttributeDecl
	entities   map[string]string
	paramEnts  map[string]string
}

// New creates an empty Grammar. Validating controls whether
// unresolved references are promoted to fatal errors.
func New(validating bool) *Grammar {
	return &Grammar{
		validating: validating,
		elements:   make(map[xml.Name]ElementDecl),
		attlists:   make(map[xml.Name][]grammar.AttributeDecl),
		entities:   make(map[string]string),
		paramEnts:  make(map[string]string),
	}
}

func (g *Grammar) Validating() bool { return g.validating }

func (g *Grammar) Element(name xml.Name) (grammar.ElementInfo, bool) {
	decl, ok := g.elements[name]
	if !ok {
		return grammar.ElementInfo{}, false
	}
	return grammar.ElementInfo{
		Name:         decl.Name,
		Content:      decl.Content,
		Model:        decl.Model,
		Attributes:   g.attlists[name],
		AnyAttribute: false,
	}, true
}

// AnyElementAllowed is always false for a DTD grammar: DTDs have no
// wildcard content particle equivalent to xs:any.
func (g *Grammar) AnyElementAllowed(ancestor, name xml.Name) bool { return false }

// ValidateValue applies the built-in validation DTD attribute types
// carry (ID/IDREF/NMTOKEN token-shape checks); DTDs have no user-defined
// simple types, so any other type name is accepted without constraint.
func (g *Grammar) ValidateValue(typeName xml.Name, value string) error {
	switch typeName.Local {
	case "ID", "IDREF", "ENTITY":
		if !isName(value) {
			return fmt.Errorf("dtd: %q is not a valid Name", value)
		}
	case "IDREFS", "ENTITIES":
		for _, tok := range splitTokens(value) {
			if !isName(tok) {
				return fmt.Errorf("dtd: %q is not a valid Name", tok)
			}
		}
	case "NMTOKEN":
		if !isNmtoken(value) {
			return fmt.Errorf("dtd: %q is not a valid Nmtoken", value)
		}
	case "NMTOKENS":
		for _, tok := range splitTokens(value) {
			if !isNmtoken(tok) {
				return fmt.Errorf("dtd: %q is not a valid Nmtoken", tok)
			}
		}
	}
	return nil
}

// Entity returns the replacement text of a general entity declared by
// this grammar.
func (g *Grammar) Entity(name string) (string, bool) {
	v, ok := g.entities[name]
	return v, ok
}

func splitTokens(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
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

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !isNameStart(r) {
				return false
			}
		} else if !isNameChar(r) {
			return false
		}
	}
	return true
}

func isNmtoken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isNameChar(r) {
			return false
		}
	}
	return true
}

func isNameStart(r rune) bool {
	return r == '_' || r == ':' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || (r >= '0' && r <= '9')
}
