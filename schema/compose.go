package schema

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/xmlkit-go/xmlkit/internal/dependency"
	"github.com/xmlkit-go/xmlkit/reader"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// importScanner records the schemaLocation of every xs:import/xs:include
// child directly under a schema document's root element, without
// building any grammar object. It exists solely so LoadComposite can
// discover the import/include dependency graph before any document is
// parsed by the real Handler.
type importScanner struct {
	scanner.BaseHandler
	depth int
	locs  []string
}

func (s *importScanner) StartElement(name xml.Name, attrs []scanner.Attr) error {
	s.depth++
	if s.depth == 2 && (name.Local == "import" || name.Local == "include") {
		for _, a := range attrs {
			if a.Name.Local == "schemaLocation" && a.Value != "" {
				s.locs = append(s.locs, a.Value)
			}
		}
	}
	return nil
}

func (s *importScanner) EndElement(xml.Name) error {
	s.depth--
	return nil
}

// scanImports returns the schemaLocation of every xs:import/xs:include
// reachable directly from path's root schema element, each resolved
// relative to path's own directory.
func scanImports(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := reader.Open(path, f)
	if err != nil {
		return nil, err
	}
	is := &importScanner{}
	if err := scanner.New(path, h).Run(is); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	out := make([]string, 0, len(is.locs))
	for _, loc := range is.locs {
		if filepath.IsAbs(loc) {
			out = append(out, loc)
		} else {
			out = append(out, filepath.Join(dir, loc))
		}
	}
	return out, nil
}

// LoadComposite loads rootPath and every schema document it reaches
// through xs:import/xs:include schemaLocation attributes into a single
// shared Grammar. The individual document loads are ordered by an
// internal/dependency.Graph built from the schemaLocation edges
// discovered by scanImports, so an imported/included document's
// declarations are always registered in the arena before the document
// that imports it is parsed — the ordinary forward-reference-across-
// files case this gives needs no cross-schema Resolver at all, only
// Handler's own within-document deferred queue (see Handler.EndDocument).
// Mutually importing schemas, a legal if rarer construct, are exactly
// the cycle Graph.Flatten tolerates: each document is still visited and
// loaded exactly once, just without a guarantee that its back-edge
// import already finished, in which case the affected references
// surface as diagnostics the same way an unresolved forward reference
// within a single file would.
func LoadComposite(rootPath string, validating bool) (*Grammar, []error, error) {
	var graph dependency.Graph
	visited := make(map[string]bool)

	var discover func(path string) error
	discover = func(path string) error {
		if visited[path] {
			return nil
		}
		visited[path] = true
		graph.Add(path, path) // register path as a load target even when it imports nothing
		deps, err := scanImports(path)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			graph.Add(path, dep)
			if err := discover(dep); err != nil {
				return err
			}
		}
		return nil
	}
	if err := discover(rootPath); err != nil {
		return nil, nil, err
	}

	g := NewGrammar(validating)
	var diags []error
	var loadErr error
	graph.Flatten(func(path string) {
		if loadErr != nil {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			loadErr = err
			return
		}
		defer f.Close()
		h, err := reader.Open(path, f)
		if err != nil {
			loadErr = err
			return
		}
		handler := NewHandler(g, !validating)
		if err := scanner.New(path, h).Run(handler); err != nil {
			loadErr = err
			return
		}
		diags = append(diags, handler.Diagnostics()...)
	})
	if loadErr != nil {
		return nil, nil, loadErr
	}

	if err := g.Freeze(); err != nil {
		if validating {
			return nil, diags, err
		}
		diags = append(diags, err)
	}
	return g, diags, nil
}
