// Package dom builds and represents the tree a parsed XML document
// reconstructs into: a Document owning an ordered sequence of nodes,
// with the text-coalescing, attribute-uniqueness, and single-root
// invariants the rest of the toolkit (validator, canon) relies on.
package dom

import "encoding/xml"

// Kind tags the variant of an XMLNode, using the numeric codes fixed by
// the external API.
type Kind int

const (
	KindDocument Kind = iota
	KindElement
	KindAttribute
	KindCDATA
	KindComment
	KindProcessingInstruction
	KindText
	KindEntityDecl
	KindXMLDeclaration
	KindAttributeListDecl
	KindDocumentType
	KindAttributeDecl
	KindElementDecl
	KindInternalSubset
	KindNotationDecl
)

// Node is the tagged sum of every value an XML document tree may
// contain: Document, Element, Attribute, Text, CDATA, Comment,
// ProcessingInstruction, XMLDeclaration, or DocumentType.
type Node interface {
	Kind() Kind
}

// Text is a run of character data. Two Text nodes never appear
// adjacent within the same parent; the builder merges them on append
// (invariant I2).
type Text struct {
	Data string
}

func (*Text) Kind() Kind { return KindText }

// CDATA is a character-data run that was delimited by <![CDATA[ ]]> in
// the source. It participates in the same text-coalescing rule as Text
// only with an adjacent CDATA of the same kind; a CDATA run is never
// merged with a plain Text sibling, since doing so would lose the
// author's choice of escaping.
type CDATA struct {
	Data string
}

func (*CDATA) Kind() Kind { return KindCDATA }

// Comment is a <!-- ... --> node.
type Comment struct {
	Data string
}

func (*Comment) Kind() Kind { return KindComment }

// ProcessingInstruction is a <?target data?> node.
type ProcessingInstruction struct {
	Target, Data string
}

func (*ProcessingInstruction) Kind() Kind { return KindProcessingInstruction }

// XMLDeclaration is the optional <?xml ... ?> prolog. Per the resolved
// ambiguity in the design notes, Encoding() returns the declared
// encoding, not the version.
type XMLDeclaration struct {
	Version    string
	Enc        string
	Standalone string
}

func (*XMLDeclaration) Kind() Kind { return KindXMLDeclaration }

// Encoding returns the declared character encoding, e.g. "UTF-8".
func (d *XMLDeclaration) Encoding() string { return d.Enc }

// DocumentType is the optional <!DOCTYPE name ...> node. Equality is
// defined over (PublicID, SystemID) only, per the resolved ambiguity
// in the design notes.
type DocumentType struct {
	Name           string
	PublicID       string
	SystemID       string
	InternalSubset string
}

func (*DocumentType) Kind() Kind { return KindDocumentType }

// Equal reports whether two DocumentType nodes identify the same
// external subset.
func (d *DocumentType) Equal(other *DocumentType) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.PublicID == other.PublicID && d.SystemID == other.SystemID
}

// Attribute is a single attribute of an Element.
type Attribute struct {
	Name  xml.Name
	Value string
	// Lexical is the value as it appeared in the source before entity
	// expansion, when that differs from Value (e.g. "A&#38;B" expands
	// to a Value of "A&B"). Empty when identical to Value.
	Lexical string
	// DeclaredType is the attribute's declared simple type name, when a
	// grammar has supplied one (e.g. "ID", "NMTOKEN", a schema type).
	DeclaredType string
	// Default is the attribute's declared default value, when a
	// grammar has supplied one.
	Default string
	// Specified is false when the attribute's value was injected by a
	// grammar default rather than written by the document's author.
	Specified bool
}

func (*Attribute) Kind() Kind { return KindAttribute }

// LexicalValue returns the attribute's pre-expansion textual form, for
// callers (the canonicalizer) that need to tell whether a character
// reference should be preserved.
func (a *Attribute) LexicalValue() string {
	if a.Lexical != "" {
		return a.Lexical
	}
	return a.Value
}

// Element is a tagged element node: a qualified name, an ordered,
// name-unique attribute set, and an ordered sequence of children.
type Element struct {
	Name   xml.Name
	Prefix string

	attrNames []xml.Name
	attrs     map[xml.Name]*Attribute

	Children []Node
	Parent   *Element
}

func (*Element) Kind() Kind { return KindElement }

// NewElement creates an empty Element with the given canonical name.
func NewElement(name xml.Name) *Element {
	return &Element{Name: name, attrs: make(map[xml.Name]*Attribute)}
}

// SetAttr inserts or replaces an attribute by name, preserving
// insertion order for first-time inserts (invariant I3: attribute
// names are unique within an Element).
func (e *Element) SetAttr(a *Attribute) {
	if e.attrs == nil {
		e.attrs = make(map[xml.Name]*Attribute)
	}
	if _, exists := e.attrs[a.Name]; !exists {
		e.attrNames = append(e.attrNames, a.Name)
	}
	e.attrs[a.Name] = a
}

// Attr returns the attribute named name, or nil if none is set.
func (e *Element) Attr(name xml.Name) *Attribute {
	return e.attrs[name]
}

// AttrValue returns the value of the attribute named name, or "" if
// unset.
func (e *Element) AttrValue(space, local string) string {
	if a := e.attrs[xml.Name{Space: space, Local: local}]; a != nil {
		return a.Value
	}
	return ""
}

// Attrs returns the Element's attributes in insertion order.
func (e *Element) Attrs() []*Attribute {
	out := make([]*Attribute, len(e.attrNames))
	for i, n := range e.attrNames {
		out[i] = e.attrs[n]
	}
	return out
}

// AppendChild appends a child node, merging it into a trailing sibling
// of the same kind when both are Text, or both are CDATA (invariant
// I2). A CDATA run is never merged with a plain Text sibling.
func (e *Element) AppendChild(n Node) {
	if len(e.Children) > 0 {
		switch t := n.(type) {
		case *Text:
			if prev, ok := e.Children[len(e.Children)-1].(*Text); ok {
				prev.Data += t.Data
				return
			}
		case *CDATA:
			if prev, ok := e.Children[len(e.Children)-1].(*CDATA); ok {
				prev.Data += t.Data
				return
			}
		}
	}
	if el, ok := n.(*Element); ok {
		el.Parent = e
	}
	e.Children = append(e.Children, n)
}

// Text concatenates the character content of all direct Text and CDATA
// children, ignoring comments, PIs, and sub-elements.
func (e *Element) Text() string {
	var s string
	for _, c := range e.Children {
		switch t := c.(type) {
		case *Text:
			s += t.Data
		case *CDATA:
			s += t.Data
		}
	}
	return s
}

// ChildElements returns the direct Element children, in document order.
func (e *Element) ChildElements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Search returns every descendant Element (including e itself) whose
// canonical name matches name, in document order.
func (e *Element) Search(name xml.Name) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		if el.Name == name {
			out = append(out, el)
		}
		for _, c := range el.ChildElements() {
			walk(c)
		}
	}
	walk(e)
	return out
}

// Document is the root of a parsed XML document: an ordered sequence of
// top-level nodes, of which exactly one is an Element (invariant I1).
type Document struct {
	Children    []Node
	Declaration *XMLDeclaration
	DocType     *DocumentType
	Root        *Element
}

func (*Document) Kind() Kind { return KindDocument }

// AppendChild appends a top-level node to the Document, tracking the
// Declaration/DocType/Root convenience fields as it goes.
func (d *Document) AppendChild(n Node) {
	d.Children = append(d.Children, n)
	switch v := n.(type) {
	case *XMLDeclaration:
		d.Declaration = v
	case *DocumentType:
		d.DocType = v
	case *Element:
		d.Root = v
	}
}
