// Package xmlkit is the top-level facade tying the reader, scanner,
// dom, catalog, dtd, schema, validator, and canon packages into a
// single Parse/Canonicalize entry point, the way a library's top
// package typically exposes a facade over its internal scanning and
// serialization stages.
package xmlkit

import (
	"io"
	"os"

	"github.com/xmlkit-go/xmlkit/canon"
	"github.com/xmlkit-go/xmlkit/catalog"
	"github.com/xmlkit-go/xmlkit/dom"
	"github.com/xmlkit-go/xmlkit/grammar"
	"github.com/xmlkit-go/xmlkit/reader"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// GrammarHandler is invoked once a document's DOCTYPE or
// xsi:schemaLocation/xsi:noNamespaceSchemaLocation names an external
// grammar and Options.Catalog (when set) has had a chance to resolve
// it. It receives the resolved URI (or the identifier verbatim when no
// Catalog resolved it) and the public identifier, if any, and returns
// the compiled grammar to validate against. Returning (nil, nil)
// declines validation for this document without failing the parse.
type GrammarHandler func(resolvedURI, publicID string) (grammar.Grammar, error)

// Options configures a single Parse call.
type Options struct {
	// Validating runs the structural validator and promotes unresolved
	// schema references to errors.
	Validating bool
	// IncludeDefaultAttributes injects grammar-declared defaults into
	// the built Document as unspecified attributes.
	IncludeDefaultAttributes bool
	// Catalog resolves external identifiers (DOCTYPE system/public IDs,
	// xsi:schemaLocation locations) to local URIs before GrammarHandler
	// is consulted. Nil means identifiers are used verbatim.
	Catalog *catalog.Catalog
	// GrammarHandler compiles the grammar a resolved URI names. Nil
	// means no external grammar is loaded; a DOCTYPE's internal subset
	// is still parsed and validated against when Validating is set.
	GrammarHandler GrammarHandler
	// StopAtFirstError aborts the parse on the first validation
	// failure instead of collecting every fault into Result.Errors.
	StopAtFirstError bool
	// StrictEncoding requires the three-byte BOM probe alone to decide
	// a stream's encoding, assuming UTF-8 when no mark is present. When
	// false (the default), a stream with no BOM is additionally run
	// through a best-effort content sniff before UTF-8 is assumed.
	StrictEncoding bool
}

// Result is everything a Parse call produces.
type Result struct {
	// Document is the built tree. Non-nil whenever Parse returns a nil
	// error, even if Errors is non-empty: validation faults abort the
	// parse only when Options.StopAtFirstError is set; scanner/structural
	// faults always do.
	Document *dom.Document
	// Errors collects every validation fault observed, in document
	// order. Empty unless Options.Validating is set and a grammar
	// resolved.
	Errors []error
}

// Parse reads path through src (opening path directly when src is
// nil), reconstructs its Document, and — when Options.Validating is set
// and a grammar resolves — validates it against that grammar while it
// is built: bytes flow to the scanner, whose events feed both the DOM
// builder and the validator in the same pass.
func Parse(path string, src io.Reader, opts Options) (*Result, error) {
	if src == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		src = f
	}
	open := reader.OpenLax
	if opts.StrictEncoding {
		open = reader.Open
	}
	h, err := open(path, src)
	if err != nil {
		return nil, err
	}
	builder := dom.NewBuilder()
	var inner scanner.ContentHandler = builder
	if !opts.IncludeDefaultAttributes {
		// Drop builder's DefaultAttributeHandler capability so the
		// validator never materializes defaulted attributes into the
		// tree; see plainForwarder's doc comment for how this works.
		inner = plainForwarder{inner}
	}
	gate := newGrammarGate(opts, inner)

	sc := scanner.New(path, h)
	if err := sc.Run(gate); err != nil {
		return nil, err
	}
	return &Result{Document: builder.Document(), Errors: gate.errors()}, nil
}

// Canonicalize serializes doc as W3C Canonical XML 1.0 (inclusive form,
// no comments).
func Canonicalize(doc *dom.Document) ([]byte, error) { return canon.Marshal(doc) }

// plainForwarder forwards every ContentHandler call to the wrapped
// handler without exposing any method beyond the ContentHandler
// interface itself. Embedding the interface value, rather than the
// concrete *dom.Builder, means a type assertion for
// validator.DefaultAttributeHandler on a plainForwarder fails even
// though the wrapped *dom.Builder implements it — Go resolves
// interface-satisfaction type assertions against the static method set
// of the wrapper, not the dynamic type underneath.
type plainForwarder struct{ scanner.ContentHandler }
