package validator

import (
	"encoding/xml"
	"strings"

	"github.com/xmlkit-go/xmlkit/grammar"
	"github.com/xmlkit-go/xmlkit/qname"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// DefaultAttributeHandler is implemented by a ContentHandler that wants
// to observe attributes the validator materializes from a declaration's
// default or fixed value, because the source document never wrote them.
// Such a handler should record the attribute with specified=false.
type DefaultAttributeHandler interface {
	DefaultAttribute(element, attr xml.Name, value string) error
}

type elementFrame struct {
	name     xml.Name
	info     grammar.ElementInfo
	declared bool
	children []xml.Name
	text     strings.Builder
}

// Handler is a scanner.ContentHandler that validates a live SAX event
// stream against a loaded Grammar while forwarding every event,
// unmodified except for materialized default attributes, to Inner.
//
// Handler resolves element and attribute names to their canonical
// (namespace, local) form itself, the same way schema.Handler does,
// since the scanner reports prefixes verbatim rather than namespace URIs.
type Handler struct {
	Grammar grammar.Grammar
	Inner   scanner.ContentHandler

	// StopAtFirst makes the first validation failure abort the scan by
	// returning it from the offending method; otherwise failures
	// accumulate in Errors and the scan continues to completion.
	StopAtFirst bool

	scopes []qname.Scope
	stack  []*elementFrame
	Errors []error
}

// NewHandler creates a validating Handler that forwards well-formed
// events to inner after checking them against g.
func NewHandler(g grammar.Grammar, inner scanner.ContentHandler) *Handler {
	return &Handler{Grammar: g, Inner: inner, scopes: []qname.Scope{{}}}
}

func (h *Handler) fail(err error) error {
	h.Errors = append(h.Errors, err)
	if h.StopAtFirst {
		return err
	}
	return nil
}

func (h *Handler) scope() qname.Scope { return h.scopes[len(h.scopes)-1] }

func toXMLAttrs(attrs []scanner.Attr) []xml.Attr {
	out := make([]xml.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = xml.Attr{Name: a.Name, Value: a.Value}
	}
	return out
}

func resolveName(scope qname.Scope, name xml.Name, defaultNS string) xml.Name {
	qn := name.Local
	if name.Space != "" {
		qn = name.Space + ":" + name.Local
	}
	resolved, _ := scope.Resolve(qn, defaultNS)
	return resolved
}

func (h *Handler) path() string {
	parts := make([]string, len(h.stack))
	for i, f := range h.stack {
		parts[i] = clarkString(f.name)
	}
	return "/" + strings.Join(parts, "/")
}

func (h *Handler) StartElement(name xml.Name, attrs []scanner.Attr) error {
	scope := h.scope().Push(toXMLAttrs(attrs))
	h.scopes = append(h.scopes, scope)

	resolved := resolveName(scope, name, "")
	frame := &elementFrame{name: resolved}

	info, ok := h.Grammar.Element(resolved)
	admitted := ok
	if !ok && len(h.stack) > 0 {
		// An ancestor's Any wildcard admits the element without
		// declaring it: no error, but nothing to check against either.
		ancestor := h.stack[len(h.stack)-1]
		if ancestor.declared {
			admitted = h.Grammar.AnyElementAllowed(ancestor.name, resolved)
		}
	}
	frame.declared = ok
	frame.info = info
	h.stack = append(h.stack, frame)

	if !admitted {
		if err := h.fail(&UndeclaredElement{Path: h.path(), Name: resolved}); err != nil {
			return err
		}
	}

	if h.Inner != nil {
		if err := h.Inner.StartElement(name, attrs); err != nil {
			return err
		}
	}

	if ok {
		return h.checkAttributes(resolved, scope, info, attrs)
	}
	return nil
}

func (h *Handler) checkAttributes(elementName xml.Name, scope qname.Scope, info grammar.ElementInfo, attrs []scanner.Attr) error {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Local == "xmlns" && a.Name.Space == "") {
			continue
		}
		// An unprefixed attribute is never in the default namespace.
		resolved := xml.Name{Local: a.Name.Local}
		if a.Name.Space != "" {
			resolved = resolveName(scope, a.Name, "")
		}
		key := clarkString(resolved)
		seen[key] = true

		decl, ok := findAttr(info.Attributes, resolved)
		if !ok {
			if info.AnyAttribute {
				continue
			}
			if err := h.fail(&UndeclaredAttribute{Path: h.path(), Name: resolved}); err != nil {
				return err
			}
			continue
		}
		if decl.Use == grammar.AttrProhibited {
			if err := h.fail(&ValidationError{Path: h.path(), Kind: "ProhibitedAttribute", Message: "attribute " + key + " is prohibited"}); err != nil {
				return err
			}
			continue
		}
		if decl.Type != (xml.Name{}) {
			value := a.Value
			if tokenizedType(decl.Type) {
				value = scanner.CollapseSpace(value)
			}
			if err := h.Grammar.ValidateValue(decl.Type, value); err != nil {
				if err2 := h.fail(&ValidationError{Path: h.path(), Kind: "InvalidAttributeValue", Message: key + ": " + err.Error()}); err2 != nil {
					return err2
				}
			}
		}
	}
	for _, decl := range info.Attributes {
		key := clarkString(decl.Name)
		if seen[key] {
			continue
		}
		if decl.Use == grammar.AttrRequired {
			if err := h.fail(&ValidationError{Path: h.path(), Kind: "MissingAttribute", Message: "required attribute " + key + " is missing"}); err != nil {
				return err
			}
			continue
		}
		value, has := decl.Default, decl.HasDefault
		if decl.HasFixed {
			value, has = decl.Fixed, true
		}
		if has {
			if dh, ok := h.Inner.(DefaultAttributeHandler); ok {
				if err := dh.DefaultAttribute(elementName, decl.Name, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// tokenizedType reports whether a declared attribute type requires the
// collapse normalization before its value is checked. Only an attribute
// whose grammar declared such a type is normalized; every other value
// is validated exactly as written.
func tokenizedType(t xml.Name) bool {
	if t.Space != "" {
		return false
	}
	switch t.Local {
	case "ID", "IDREF", "IDREFS", "ENTITY", "ENTITIES", "NMTOKEN", "NMTOKENS", "NOTATION":
		return true
	}
	return false
}

func findAttr(attrs []grammar.AttributeDecl, name xml.Name) (grammar.AttributeDecl, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return grammar.AttributeDecl{}, false
}

func (h *Handler) Characters(s string) error {
	if f := h.top(); f != nil {
		f.text.WriteString(s)
	}
	if h.Inner != nil {
		return h.Inner.Characters(s)
	}
	return nil
}

func (h *Handler) IgnorableWhitespace(s string) error {
	if h.Inner != nil {
		return h.Inner.IgnorableWhitespace(s)
	}
	return nil
}

func (h *Handler) top() *elementFrame {
	if len(h.stack) == 0 {
		return nil
	}
	return h.stack[len(h.stack)-1]
}

func (h *Handler) EndElement(name xml.Name) error {
	h.scopes = h.scopes[:len(h.scopes)-1]

	f := h.top()
	h.stack = h.stack[:len(h.stack)-1]

	if f != nil && f.declared {
		if err := h.checkContent(f); err != nil {
			return err
		}
	}
	if len(h.stack) > 0 && f != nil {
		parent := h.stack[len(h.stack)-1]
		parent.children = append(parent.children, f.name)
	}

	if h.Inner != nil {
		return h.Inner.EndElement(name)
	}
	return nil
}

func (h *Handler) checkContent(f *elementFrame) error {
	switch f.info.Content {
	case grammar.ContentEmpty:
		if len(f.children) > 0 || strings.TrimSpace(f.text.String()) != "" {
			return h.fail(&ValidationError{Path: h.path() + "/" + clarkString(f.name), Kind: "UnexpectedContent", Message: "element declared empty has content"})
		}
	case grammar.ContentSimple:
		if f.info.SimpleTypeName != (xml.Name{}) {
			if err := h.Grammar.ValidateValue(f.info.SimpleTypeName, f.text.String()); err != nil {
				return h.fail(&ValidationError{Path: h.path() + "/" + clarkString(f.name), Kind: "InvalidValue", Message: err.Error()})
			}
		}
	case grammar.ContentElementOnly, grammar.ContentMixed:
		if f.info.Model != nil && !matchContentModel(f.info.Model, f.children, grammar.WildcardMatches) {
			return h.fail(&ValidationError{Path: h.path() + "/" + clarkString(f.name), Kind: "ContentModelMismatch", Message: "child element sequence does not match the declared content model"})
		}
	case grammar.ContentAny:
		// no structural check
	}
	return nil
}

// StartDocument resets validator state so a single Handler can drive
// more than one document sequentially.
func (h *Handler) StartDocument() error {
	h.scopes = []qname.Scope{{}}
	h.stack = nil
	h.Errors = nil
	if h.Inner != nil {
		return h.Inner.StartDocument()
	}
	return nil
}

func (h *Handler) EndDocument() error {
	if h.Inner != nil {
		return h.Inner.EndDocument()
	}
	return nil
}

func (h *Handler) Comment(s string) error {
	if h.Inner != nil {
		return h.Inner.Comment(s)
	}
	return nil
}

func (h *Handler) ProcessingInstruction(target, data string) error {
	if h.Inner != nil {
		return h.Inner.ProcessingInstruction(target, data)
	}
	return nil
}

func (h *Handler) StartCDATA() error {
	if h.Inner != nil {
		return h.Inner.StartCDATA()
	}
	return nil
}

func (h *Handler) EndCDATA() error {
	if h.Inner != nil {
		return h.Inner.EndCDATA()
	}
	return nil
}

func (h *Handler) XMLDeclaration(version, encoding, standalone string) error {
	if h.Inner != nil {
		return h.Inner.XMLDeclaration(version, encoding, standalone)
	}
	return nil
}

func (h *Handler) StartDTD(name, publicID, systemID string) error {
	if h.Inner != nil {
		return h.Inner.StartDTD(name, publicID, systemID)
	}
	return nil
}

func (h *Handler) InternalSubset(text string) error {
	if h.Inner != nil {
		return h.Inner.InternalSubset(text)
	}
	return nil
}

func (h *Handler) EndDTD() error {
	if h.Inner != nil {
		return h.Inner.EndDTD()
	}
	return nil
}

func (h *Handler) SkippedEntity(name string) error {
	if h.Inner != nil {
		return h.Inner.SkippedEntity(name)
	}
	return nil
}
