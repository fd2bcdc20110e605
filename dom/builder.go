package dom

import (
	"encoding/xml"

	"github.com/xmlkit-go/xmlkit/scanner"
)

// StructuralError reports a mismatch between the SAX event stream and
// the DOM builder's expectations, such as an endElement with no matching
// startElement on the stack, or endDocument firing with elements still
// open.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string { return "dom: " + e.Message }

// Builder is a scanner.ContentHandler that reconstructs a Document from
// the SAX event stream. Create one with NewBuilder, drive it with a
// scanner.Scanner, and read the result with Document after Run returns
// without error.
type Builder struct {
	scanner.BaseHandler

	doc   *Document
	stack []*Element
	err   error

	// InternalSubsetText is set from the DOCTYPE's internal subset, if
	// any; the dtd package consumes it separately. The DOM builder
	// itself does not interpret it.
	InternalSubsetText string
	sawDTD              bool
	dtdName, dtdPub, dtdSys string
	inCDATA bool
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{doc: &Document{}}
}

// Document returns the tree built so far. It is only complete and
// immutable once EndDocument has fired without error.
func (b *Builder) Document() *Document { return b.doc }

func (b *Builder) StartDocument() error {
	return nil
}

func (b *Builder) XMLDeclaration(version, encoding, standalone string) error {
	b.doc.AppendChild(&XMLDeclaration{Version: version, Enc: encoding, Standalone: standalone})
	return nil
}

func (b *Builder) StartDTD(name, publicID, systemID string) error {
	b.sawDTD = true
	b.dtdName, b.dtdPub, b.dtdSys = name, publicID, systemID
	return nil
}

func (b *Builder) InternalSubset(text string) error {
	b.InternalSubsetText = text
	return nil
}

func (b *Builder) EndDTD() error {
	if b.sawDTD {
		b.doc.AppendChild(&DocumentType{
			Name:           b.dtdName,
			PublicID:       b.dtdPub,
			SystemID:       b.dtdSys,
			InternalSubset: b.InternalSubsetText,
		})
	}
	return nil
}

func (b *Builder) StartElement(name xml.Name, attrs []scanner.Attr) error {
	el := NewElement(name)
	el.Prefix = name.Space
	for _, a := range attrs {
		attr := &Attribute{Name: a.Name, Value: a.Value, Specified: true}
		if a.Lexical != a.Value {
			attr.Lexical = a.Lexical
		}
		if el.Attr(a.Name) != nil {
			b.err = &StructuralError{Message: "duplicate attribute " + a.Name.Local + " on <" + name.Local + ">"}
			return b.err
		}
		el.SetAttr(attr)
	}
	if len(b.stack) == 0 {
		b.doc.AppendChild(el)
	} else {
		b.stack[len(b.stack)-1].AppendChild(el)
	}
	b.stack = append(b.stack, el)
	return nil
}

func (b *Builder) EndElement(name xml.Name) error {
	if len(b.stack) == 0 {
		b.err = &StructuralError{Message: "endElement </" + name.Local + "> with no matching start"}
		return b.err
	}
	top := b.stack[len(b.stack)-1]
	if top.Name != name {
		b.err = &StructuralError{Message: "endElement </" + name.Local + "> does not match open element <" + top.Name.Local + ">"}
		return b.err
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

func (b *Builder) Characters(s string) error {
	if len(b.stack) == 0 {
		return nil
	}
	if b.inCDATA {
		b.stack[len(b.stack)-1].AppendChild(&CDATA{Data: s})
		return nil
	}
	b.stack[len(b.stack)-1].AppendChild(&Text{Data: s})
	return nil
}

func (b *Builder) IgnorableWhitespace(s string) error {
	if len(b.stack) == 0 {
		return nil
	}
	b.stack[len(b.stack)-1].AppendChild(&Text{Data: s})
	return nil
}

func (b *Builder) Comment(s string) error {
	n := Node(&Comment{Data: s})
	b.appendNode(n)
	return nil
}

func (b *Builder) ProcessingInstruction(target, data string) error {
	b.appendNode(&ProcessingInstruction{Target: target, Data: data})
	return nil
}

func (b *Builder) appendNode(n Node) {
	if len(b.stack) == 0 {
		b.doc.AppendChild(n)
	} else {
		b.stack[len(b.stack)-1].AppendChild(n)
	}
}

func (b *Builder) StartCDATA() error { b.inCDATA = true; return nil }
func (b *Builder) EndCDATA() error   { b.inCDATA = false; return nil }

func (b *Builder) SkippedEntity(name string) error { return nil }

// DefaultAttribute implements validator.DefaultAttributeHandler: it
// attaches an attribute the validator materialized from a declared
// default or fixed value, marked unspecified since the source document
// never wrote it.
func (b *Builder) DefaultAttribute(element, attr xml.Name, value string) error {
	if len(b.stack) == 0 {
		return nil
	}
	top := b.stack[len(b.stack)-1]
	if top.Attr(attr) != nil {
		return nil
	}
	top.SetAttr(&Attribute{Name: attr, Value: value, Specified: false})
	return nil
}

func (b *Builder) EndDocument() error {
	if len(b.stack) != 0 {
		return &StructuralError{Message: "endDocument with unclosed elements"}
	}
	if b.doc.Root == nil {
		return &StructuralError{Message: "document has no root element"}
	}
	return nil
}

// Parse is a convenience that drives sc with a fresh Builder and
// returns the resulting Document.
func Parse(sc *scanner.Scanner) (*Document, error) {
	b := NewBuilder()
	if err := sc.Run(b); err != nil {
		return nil, err
	}
	return b.Document(), nil
}
