package scanner

import "encoding/xml"

// Attr is a single attribute as reported by a startElement event, before
// any grammar has assigned it a declared type or default. Name carries
// the raw prefix exactly as written; the scanner performs no namespace
// resolution, and neither does the DOM builder: consumers that need
// namespace URIs (the validator, the schema parser) resolve prefixes
// themselves.
type Attr struct {
	Name  xml.Name
	Value string
	// Lexical is Value as it appeared in the source (after line-end
	// normalization), before entity and character-reference expansion.
	// It is identical to Value unless the attribute contained an entity
	// or character reference.
	Lexical string
}

// ContentHandler receives the stream of SAX-style events produced by a
// Scanner. Calls are synchronous and strictly ordered: a handler method
// returns before the next event is produced, and every startElement is
// matched by exactly one endElement for well-formed input.
//
// A handler may return an error from any method to cancel the scan; the
// Scanner wraps it in a *ParserAbort and returns that to its caller.
type ContentHandler interface {
	StartDocument() error
	// XMLDeclaration reports the optional <?xml version="v" encoding="e"
	// standalone="s"?> prolog. encoding and standalone are the empty
	// string when absent.
	XMLDeclaration(version, encoding, standalone string) error
	StartDTD(name, publicID, systemID string) error
	InternalSubset(text string) error
	EndDTD() error
	StartElement(name xml.Name, attrs []Attr) error
	EndElement(name xml.Name) error
	Characters(s string) error
	IgnorableWhitespace(s string) error
	Comment(s string) error
	ProcessingInstruction(target, data string) error
	StartCDATA() error
	EndCDATA() error
	SkippedEntity(name string) error
	EndDocument() error
}

// BaseHandler implements ContentHandler with no-op methods, so a caller
// that only cares about a few events can embed it and override the rest.
type BaseHandler struct{}

func (BaseHandler) StartDocument() error                               { return nil }
func (BaseHandler) XMLDeclaration(version, encoding, standalone string) error { return nil }
func (BaseHandler) StartDTD(name, publicID, systemID string) error      { return nil }
func (BaseHandler) InternalSubset(text string) error                    { return nil }
func (BaseHandler) EndDTD() error                                       { return nil }
func (BaseHandler) StartElement(name xml.Name, attrs []Attr) error      { return nil }
func (BaseHandler) EndElement(name xml.Name) error                      { return nil }
func (BaseHandler) Characters(s string) error                           { return nil }
func (BaseHandler) IgnorableWhitespace(s string) error                  { return nil }
func (BaseHandler) Comment(s string) error                              { return nil }
func (BaseHandler) ProcessingInstruction(target, data string) error     { return nil }
func (BaseHandler) StartCDATA() error                                   { return nil }
func (BaseHandler) EndCDATA() error                                     { return nil }
func (BaseHandler) SkippedEntity(name string) error                     { return nil }
func (BaseHandler) EndDocument() error                                  { return nil }
