package xmlkit

import (
	"encoding/xml"
	"strings"

	"github.com/xmlkit-go/xmlkit/dtd"
	"github.com/xmlkit-go/xmlkit/grammar"
	"github.com/xmlkit-go/xmlkit/scanner"
	"github.com/xmlkit-go/xmlkit/validator"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// grammarGate sits between the Scanner and the rest of the pipeline. It
// watches for a DOCTYPE (resolved at EndDTD, once the internal subset
// has been seen in full) or an xsi:schemaLocation/
// xsi:noNamespaceSchemaLocation attribute on the root element (resolved
// at the root's StartElement, before any of its attributes or children
// are checked), and once a grammar resolves, splices a validator.Handler
// in front of inner for the remainder of the document. Every event is
// otherwise forwarded unchanged.
type grammarGate struct {
	opts  Options
	inner scanner.ContentHandler

	target   scanner.ContentHandler // inner, or a *validator.Handler once resolved
	v        *validator.Handler
	resolved bool
	depth    int

	dtdPub, dtdSys string
	internalSubset string
	sawDTD         bool
}

func newGrammarGate(opts Options, inner scanner.ContentHandler) *grammarGate {
	return &grammarGate{opts: opts, inner: inner, target: inner}
}

func (g *grammarGate) errors() []error {
	if g.v == nil {
		return nil
	}
	return g.v.Errors
}

func (g *grammarGate) resolve(gr grammar.Grammar) {
	if gr == nil || g.resolved {
		return
	}
	g.resolved = true
	g.v = validator.NewHandler(gr, g.inner)
	g.v.StopAtFirst = g.opts.StopAtFirstError
	g.target = g.v
}

func (g *grammarGate) StartDocument() error { return g.inner.StartDocument() }

func (g *grammarGate) XMLDeclaration(version, encoding, standalone string) error {
	return g.target.XMLDeclaration(version, encoding, standalone)
}

func (g *grammarGate) StartDTD(name, publicID, systemID string) error {
	g.sawDTD = true
	g.dtdPub, g.dtdSys = publicID, systemID
	return g.target.StartDTD(name, publicID, systemID)
}

func (g *grammarGate) InternalSubset(text string) error {
	g.internalSubset = text
	return g.target.InternalSubset(text)
}

func (g *grammarGate) EndDTD() error {
	if g.sawDTD && g.opts.Validating {
		gr, err := g.resolveDTDGrammar()
		if err != nil {
			return err
		}
		g.resolve(gr)
	}
	return g.target.EndDTD()
}

// resolveDTDGrammar prefers a GrammarHandler-compiled external subset
// (resolved through Catalog when the DOCTYPE names one) and falls back
// to parsing the internal subset directly, since that one needs no
// resolution step at all.
func (g *grammarGate) resolveDTDGrammar() (grammar.Grammar, error) {
	if g.opts.GrammarHandler != nil && g.dtdSys != "" {
		uri := g.dtdSys
		if g.opts.Catalog != nil {
			if resolved, ok := g.opts.Catalog.ResolveEntity(g.dtdPub, g.dtdSys); ok {
				uri = resolved
			}
		}
		if gr, err := g.opts.GrammarHandler(uri, g.dtdPub); err != nil {
			return nil, err
		} else if gr != nil {
			return gr, nil
		}
	}
	if g.internalSubset == "" {
		return nil, nil
	}
	gr, diags := dtd.Parse(g.internalSubset, g.opts.Validating, !g.opts.Validating)
	if g.opts.Validating && len(diags) > 0 {
		return nil, diags[0]
	}
	return gr, nil
}

func (g *grammarGate) StartElement(name xml.Name, attrs []scanner.Attr) error {
	if g.depth == 0 && !g.resolved && g.opts.Validating && g.opts.GrammarHandler != nil {
		if gr, err := g.resolveSchemaLocation(attrs); err != nil {
			return err
		} else {
			g.resolve(gr)
		}
	}
	g.depth++
	return g.target.StartElement(name, attrs)
}

// resolveSchemaLocation inspects the root element's attributes for
// xsi:noNamespaceSchemaLocation or xsi:schemaLocation, resolving the
// first location it finds through Options.Catalog before handing it to
// GrammarHandler. The prefix bound to the XML Schema instance namespace
// is discovered from the same attribute set, since the scanner reports
// prefixes verbatim rather than resolved namespace URIs.
func (g *grammarGate) resolveSchemaLocation(attrs []scanner.Attr) (grammar.Grammar, error) {
	xsiPrefix, ok := findXSIPrefix(attrs)
	if !ok {
		return nil, nil
	}
	for _, a := range attrs {
		if a.Name.Space != xsiPrefix {
			continue
		}
		switch a.Name.Local {
		case "noNamespaceSchemaLocation":
			return g.resolveSchemaURI(strings.TrimSpace(a.Value))
		case "schemaLocation":
			fields := strings.Fields(a.Value)
			if len(fields) >= 2 {
				return g.resolveSchemaURI(fields[1])
			}
		}
	}
	return nil, nil
}

func findXSIPrefix(attrs []scanner.Attr) (string, bool) {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" && a.Value == xsiNamespace {
			return a.Name.Local, true
		}
	}
	return "", false
}

func (g *grammarGate) resolveSchemaURI(location string) (grammar.Grammar, error) {
	if location == "" {
		return nil, nil
	}
	uri := location
	if g.opts.Catalog != nil {
		if resolved, ok := g.opts.Catalog.MatchURI(location); ok {
			uri = resolved
		} else if resolved, ok := g.opts.Catalog.MatchSystem(location); ok {
			uri = resolved
		}
	}
	return g.opts.GrammarHandler(uri, "")
}

func (g *grammarGate) EndElement(name xml.Name) error {
	g.depth--
	return g.target.EndElement(name)
}

func (g *grammarGate) Characters(s string) error          { return g.target.Characters(s) }
func (g *grammarGate) IgnorableWhitespace(s string) error  { return g.target.IgnorableWhitespace(s) }
func (g *grammarGate) Comment(s string) error              { return g.target.Comment(s) }
func (g *grammarGate) ProcessingInstruction(t, d string) error {
	return g.target.ProcessingInstruction(t, d)
}
func (g *grammarGate) StartCDATA() error           { return g.target.StartCDATA() }
func (g *grammarGate) EndCDATA() error             { return g.target.EndCDATA() }
func (g *grammarGate) SkippedEntity(name string) error { return g.target.SkippedEntity(name) }
func (g *grammarGate) EndDocument() error          { return g.target.EndDocument() }
