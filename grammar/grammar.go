// Package grammar defines the minimal interface the structural
// validator needs from any source of element/attribute declarations,
// whether that source is a DTD or an XML Schema. Content models from
// either grammar kind are expressed as the same Particle tree so the
// validator's content-model automaton never needs to know which kind of
// grammar produced it.
package grammar

import "encoding/xml"

// Unbounded marks a particle's Max as having no upper bound.
const Unbounded = -1

// ContentKind describes what an element's declaration permits in its
// content, mirroring XML Schema's four content kinds; a DTD's EMPTY,
// mixed ((#PCDATA...)), and children content specs map onto those four,
// and a DTD's ANY onto the extra ContentAny kind.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentSimple
	ContentElementOnly
	ContentMixed
	// ContentAny corresponds to a DTD ANY content spec: any
	// well-formed content is permitted, with no structural check.
	ContentAny
)

// Particle is a node in a content-model tree: Element, Sequence,
// Choice, All, or Any, each with occurrence bounds.
type Particle interface {
	isParticle()
}

// ElementParticle matches a single child element by canonical name.
type ElementParticle struct {
	Name     xml.Name
	Min, Max int
}

func (ElementParticle) isParticle() {}

// SequenceParticle matches its children in order.
type SequenceParticle struct {
	Children []Particle
	Min, Max int
}

func (SequenceParticle) isParticle() {}

// ChoiceParticle matches exactly one of its children.
type ChoiceParticle struct {
	Children []Particle
	Min, Max int
}

func (ChoiceParticle) isParticle() {}

// AllParticle matches any permutation of its children, each at most
// once (or not at all when its own Min is 0). Per invariant I7, an All
// particle is never nested inside another particle; it only appears as
// the top-level content model of a complex type.
type AllParticle struct {
	Children []ElementParticle
}

func (AllParticle) isParticle() {}

// GroupRefParticle is a by-name reference to a named model group. The
// schema parser substitutes the referenced group's own model for it
// once the whole document has been seen (the reference may be forward,
// or point into another document of the same composite grammar), so
// the validator's automaton never encounters one in a frozen grammar.
type GroupRefParticle struct {
	Ref      xml.Name
	Min, Max int
}

func (GroupRefParticle) isParticle() {}

// AnyParticle is a wildcard matching any element in Namespace (which
// may be "##any", "##other", or a literal namespace URI list).
type AnyParticle struct {
	Namespace       string
	ProcessContents string
	Min, Max        int
}

func (AnyParticle) isParticle() {}

// AttrUse describes how an attribute declaration constrains presence.
type AttrUse int

const (
	AttrOptional AttrUse = iota
	AttrRequired
	AttrProhibited
)

// AttributeDecl is a declared attribute of an element: name, type
// reference, use, and default/fixed value.
type AttributeDecl struct {
	Name       xml.Name
	Type       xml.Name
	Use        AttrUse
	Default    string
	Fixed      string
	HasDefault bool
	HasFixed   bool
}

// ElementInfo is everything the validator needs about a single declared
// element: its content model and its attribute table.
type ElementInfo struct {
	Name         xml.Name
	Content      ContentKind
	Model        Particle // nil for ContentEmpty, ContentSimple, ContentAny
	Attributes   []AttributeDecl
	AnyAttribute bool
	// SimpleTypeName names the simple type governing ContentSimple
	// content (and attribute values share the same type table).
	SimpleTypeName xml.Name
}

// TypeValidator validates a lexical value against a simple type by
// canonical name, applying whatever facets/patterns/base-type rules the
// grammar associates with that name.
type TypeValidator interface {
	ValidateValue(typeName xml.Name, value string) error
}

// Grammar is implemented by both the dtd and schema packages. A Grammar
// is treated as immutable once handed to the validator: the validator
// reads it concurrently with no locking.
type Grammar interface {
	TypeValidator
	// Validating reports whether unresolved references should be
	// promoted to fatal errors rather than warnings.
	Validating() bool
	// Element looks up the declaration for name. ok is false if name is
	// undeclared.
	Element(name xml.Name) (ElementInfo, bool)
	// AnyElementAllowed reports whether an ancestor's content model
	// contains an Any wildcard broad enough to admit name; used when
	// Element itself reports no declaration.
	AnyElementAllowed(ancestor xml.Name, name xml.Name) bool
}
