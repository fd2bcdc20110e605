package xmlkit

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xmlkit-go/xmlkit/dtd"
	"github.com/xmlkit-go/xmlkit/grammar"
	"github.com/xmlkit-go/xmlkit/schema"
)

// DefaultGrammarHandler returns a GrammarHandler that loads a grammar
// directly from the local filesystem at resolvedURI, choosing DTD or
// XML Schema parsing by file extension. validating controls whether a
// malformed declaration or an unresolved reference aborts the load
// (true) or is merely dropped/recorded as a diagnostic (false).
func DefaultGrammarHandler(validating bool) GrammarHandler {
	return func(resolvedURI, publicID string) (grammar.Grammar, error) {
		switch strings.ToLower(filepath.Ext(resolvedURI)) {
		case ".dtd", ".ent", ".mod":
			return loadDTDGrammar(resolvedURI, validating)
		default:
			return loadSchemaGrammar(resolvedURI, validating)
		}
	}
}

func loadDTDGrammar(path string, validating bool) (grammar.Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, diags := dtd.Parse(string(data), validating, !validating)
	if validating && len(diags) > 0 {
		return nil, diags[0]
	}
	return g, nil
}

func loadSchemaGrammar(path string, validating bool) (grammar.Grammar, error) {
	g, diags, err := schema.LoadComposite(path, validating)
	if err != nil {
		return nil, err
	}
	if validating && len(diags) > 0 {
		return nil, diags[0]
	}
	return g, nil
}
