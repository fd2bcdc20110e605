// Package schema implements the XML Schema 1.0 grammar: the type/
// content-model object graph (§4.5), the schema-parse handler that
// turns a schema document into that graph (§4.6), and enough of the
// grammar.Grammar interface to let the validator execute either a DTD
// or a Schema uniformly.
package schema

import (
	"encoding/xml"

	"github.com/xmlkit-go/xmlkit/grammar"
)

// Particle, ContentKind's underlying values, and AttributeDecl are
// shared verbatim with the grammar package so the validator's
// content-model automaton never has to know whether it is walking a
// Schema-derived or DTD-derived tree.
type Particle = grammar.Particle

const (
	ContentEmpty       = grammar.ContentEmpty
	ContentSimple      = grammar.ContentSimple
	ContentElementOnly = grammar.ContentElementOnly
	ContentMixed       = grammar.ContentMixed
	ContentAny         = grammar.ContentAny
)

// Namespace URIs the grammar recognizes.
const (
	NS         = "http://www.w3.org/2001/XMLSchema"
	InstanceNS = "http://www.w3.org/2001/XMLSchema-instance"
	XMLNS      = "http://www.w3.org/XML/1998/namespace"
)

// Variety classifies a SimpleType's value space.
type Variety int

const (
	Atomic Variety = iota
	List
	Union
)

// FacetKind enumerates the constraining facets a SimpleType may carry.
type FacetKind int

const (
	FacetEnumeration FacetKind = iota
	FacetPattern
	FacetLength
	FacetMinLength
	FacetMaxLength
	FacetMinInclusive
	FacetMaxInclusive
	FacetMinExclusive
	FacetMaxExclusive
	FacetTotalDigits
	FacetFractionDigits
	FacetWhiteSpace
)

// Facet is a single constraining facet on a SimpleType.
type Facet struct {
	Kind  FacetKind
	Value string
}

// Type is the sum of *SimpleType, *ComplexType, and Builtin: anything
// that can appear as an element or attribute's type.
type Type interface {
	isType()
	XMLName() xml.Name
}

func (Builtin) isType()          {}
func (b Builtin) XMLName() xml.Name { return b.Name() }

// SimpleType carries a variety, an optional base type name, an ordered
// facet list, and (for list/union varieties) the item or member type
// names.
type SimpleType struct {
	Name        xml.Name
	Variety     Variety
	Base        xml.Name // zero value if there is no declared base (atomic deriving straight from a builtin is still named here)
	Facets      []Facet
	ItemType    xml.Name   // Variety == List
	MemberTypes []xml.Name // Variety == Union
	Anonymous   bool
}

func (*SimpleType) isType()             {}
func (t *SimpleType) XMLName() xml.Name { return t.Name }

// ContentKind mirrors grammar.ContentKind; re-exported here so schema
// callers don't need to import grammar just to read a ComplexType.
type ContentKind = grammar.ContentKind

// Derivation describes how a ComplexType was derived from its base.
type Derivation int

const (
	DerivationNone Derivation = iota
	Extension
	Restriction
)

// ComplexType carries a content kind, an optional content-model
// particle tree, an attribute table, and an optional derivation method
// with base reference.
type ComplexType struct {
	Name         xml.Name
	Content      ContentKind
	Model        Particle
	Attributes   []AttributeDecl
	AttrGroups   []xml.Name
	AnyAttribute bool
	Derivation   Derivation
	Base         xml.Name
	Mixed        bool
	Anonymous    bool
}

func (*ComplexType) isType()             {}
func (t *ComplexType) XMLName() xml.Name { return t.Name }

// SetContentModel installs m as t's content model, moving t out of its
// initial "empty" content kind: the kind becomes "mixed" when t.Mixed
// is set, else "element-only". A type with no model ever installed
// keeps its zero-value ContentEmpty kind.
func (t *ComplexType) SetContentModel(m Particle) error {
	t.Model = m
	if t.Mixed {
		t.Content = ContentMixed
	} else {
		t.Content = ContentElementOnly
	}
	return nil
}

// ElementDecl is a top-level or local element declaration.
type ElementDecl struct {
	Name              xml.Name
	Qualified         bool
	MinOccurs         int
	MaxOccurs         int
	Nillable          bool
	Abstract          bool
	SubstitutionGroup xml.Name
	Default           string
	Fixed             string
	Type              xml.Name // zero value if TypeInline is set
	TypeInline        Type
	Anonymous         bool
}

// AttributeDecl is re-exported from grammar so schema callers needn't
// import it directly for the common case.
type AttributeDecl = grammar.AttributeDecl

// AttributeGroup is a named, reusable attribute set.
type AttributeGroup struct {
	Name   xml.Name
	Attrs  []AttributeDecl
	Refs   []xml.Name // other attribute groups this one references
}

// Group is a named, reusable content-model particle.
type Group struct {
	Name  xml.Name
	Model Particle
}
