package catalog

import (
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xmlkit-go/xmlkit/dom"
	"github.com/xmlkit-go/xmlkit/reader"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// xmlPrefix is the reserved "xml" namespace prefix. The scanner reports
// attribute names as the raw prefix string an author wrote (see
// scanner.splitQName); it performs no xmlns-binding resolution of its
// own, so xml:base is recognized here by its conventional literal
// prefix rather than by the namespace URI the prefix would resolve to
// under full Namespaces-in-XML processing.
const xmlPrefix = "xml"

// Loader loads catalog documents from the filesystem, following
// nextCatalog links. Open is the only collaborator a caller must
// supply; it is usually os.Open.
type Loader struct {
	Open func(path string) (io.ReadCloser, error)
}

// DefaultLoader reads catalog documents from the local filesystem.
var DefaultLoader = &Loader{Open: func(p string) (io.ReadCloser, error) { return os.Open(p) }}

// Load parses the catalog document at path and returns the aggregated
// Catalog. nextCatalog links are resolved eagerly, in document order;
// entries already present when a nextCatalog's maps are merged in are
// not overwritten (first-loaded wins). A cycle among nextCatalog links
// is tolerated (terminates once every catalog path has been visited
// once) rather than treated as an error.
func (l *Loader) Load(path string) (*Catalog, error) {
	c := New(filepath.Dir(path))
	visited := map[string]bool{}
	if err := l.load(path, c, visited); err != nil {
		return nil, err
	}
	return c, nil
}

// Load is a convenience wrapping DefaultLoader.Load.
func Load(path string) (*Catalog, error) { return DefaultLoader.Load(path) }

func (l *Loader) load(p string, c *Catalog, visited map[string]bool) error {
	abs, _ := filepath.Abs(p)
	if visited[abs] {
		return nil
	}
	visited[abs] = true

	f, err := l.Open(p)
	if err != nil {
		return &CatalogError{Path: p, Message: err.Error()}
	}
	defer f.Close()

	h, err := reader.Open(p, f)
	if err != nil {
		return &CatalogError{Path: p, Message: err.Error()}
	}
	doc, err := dom.Parse(scanner.New(p, h))
	if err != nil {
		return &CatalogError{Path: p, Message: err.Error()}
	}
	if doc.Root == nil || doc.Root.Name.Local != "catalog" {
		return &CatalogError{Path: p, Message: "root element must be named \"catalog\""}
	}

	return l.walk(doc.Root, p, filepath.Dir(p), c, visited)
}

func (l *Loader) walk(el *dom.Element, catalogPath, base string, c *Catalog, visited map[string]bool) error {
	if b := el.AttrValue(xmlPrefix, "base"); b != "" {
		base = makeAbsoluteBase(b, base)
	}
	for _, child := range el.ChildElements() {
		childBase := base
		if b := child.AttrValue(xmlPrefix, "base"); b != "" {
			childBase = makeAbsoluteBase(b, base)
		}
		switch child.Name.Local {
		case "public":
			publicID := child.AttrValue("", "publicId")
			uri := child.AttrValue("", "uri")
			if publicID == "" || uri == "" {
				return &CatalogError{Path: catalogPath, Message: "<public> requires publicId and uri"}
			}
			abs := makeAbsolute(uri, childBase, filepath.Dir(catalogPath))
			if fileExists(abs) {
				if _, ok := c.publicCatalog[publicID]; !ok {
					c.publicCatalog[publicID] = abs
				}
				maybeIndexDTDFile(c, abs)
			}
		case "system":
			systemID := child.AttrValue("", "systemId")
			uri := child.AttrValue("", "uri")
			if systemID == "" || uri == "" {
				return &CatalogError{Path: catalogPath, Message: "<system> requires systemId and uri"}
			}
			abs := makeAbsolute(uri, childBase, filepath.Dir(catalogPath))
			if fileExists(abs) {
				if _, ok := c.systemCatalog[systemID]; !ok {
					c.systemCatalog[systemID] = abs
				}
				if strings.HasSuffix(abs, ".dtd") {
					maybeIndexDTDFile(c, abs)
				}
			}
		case "uri":
			name := child.AttrValue("", "name")
			uri := child.AttrValue("", "uri")
			if name == "" || uri == "" {
				return &CatalogError{Path: catalogPath, Message: "<uri> requires name and uri"}
			}
			abs := makeAbsolute(uri, childBase, filepath.Dir(catalogPath))
			if fileExists(abs) {
				if _, ok := c.uriCatalog[name]; !ok {
					c.uriCatalog[name] = abs
				}
			}
		case "rewriteSystem":
			prefix := child.AttrValue("", "systemIdStartString")
			repl := child.AttrValue("", "rewritePrefix")
			if prefix == "" {
				return &CatalogError{Path: catalogPath, Message: "<rewriteSystem> requires systemIdStartString"}
			}
			if !hasRewrite(c.systemRewrites, prefix) {
				c.systemRewrites = append(c.systemRewrites, rewrite{prefix, repl})
			}
		case "rewriteURI":
			prefix := child.AttrValue("", "uriStartString")
			repl := child.AttrValue("", "rewritePrefix")
			if prefix == "" {
				return &CatalogError{Path: catalogPath, Message: "<rewriteURI> requires uriStartString"}
			}
			if !hasRewrite(c.uriRewrites, prefix) {
				c.uriRewrites = append(c.uriRewrites, rewrite{prefix, repl})
			}
		case "nextCatalog":
			target := child.AttrValue("", "catalog")
			if target == "" {
				return &CatalogError{Path: catalogPath, Message: "<nextCatalog> requires catalog"}
			}
			abs := makeAbsolute(target, childBase, filepath.Dir(catalogPath))
			next := New(filepath.Dir(abs))
			if err := l.load(abs, next, visited); err != nil {
				continue // a broken nextCatalog link does not abort the enclosing load
			}
			mergeWinningExisting(c, next)
		default:
			// A container element (OASIS <group>, or anything this
			// loader does not recognize) is walked depth-first so its
			// entries — and any xml:base it scopes over them — still
			// take effect; the previous base is restored on backtrack
			// simply by base never changing in this frame. walk applies
			// the child's own xml:base itself, so the parent base is
			// what gets passed down.
			if err := l.walk(child, catalogPath, base, c, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasRewrite(list []rewrite, prefix string) bool {
	for _, r := range list {
		if r.prefix == prefix {
			return true
		}
	}
	return false
}

// mergeWinningExisting merges next's maps and rewrite lists into c,
// with entries already present in c taking precedence, per the
// specification's nextCatalog merge rule.
func mergeWinningExisting(c, next *Catalog) {
	for k, v := range next.publicCatalog {
		if _, ok := c.publicCatalog[k]; !ok {
			c.publicCatalog[k] = v
		}
	}
	for k, v := range next.systemCatalog {
		if _, ok := c.systemCatalog[k]; !ok {
			c.systemCatalog[k] = v
		}
	}
	for k, v := range next.uriCatalog {
		if _, ok := c.uriCatalog[k]; !ok {
			c.uriCatalog[k] = v
		}
	}
	for k, v := range next.dtdCatalog {
		if _, ok := c.dtdCatalog[k]; !ok {
			c.dtdCatalog[k] = v
		}
	}
	for _, r := range next.systemRewrites {
		if !hasRewrite(c.systemRewrites, r.prefix) {
			c.systemRewrites = append(c.systemRewrites, r)
		}
	}
	for _, r := range next.uriRewrites {
		if !hasRewrite(c.uriRewrites, r.prefix) {
			c.uriRewrites = append(c.uriRewrites, r)
		}
	}
}

func maybeIndexDTDFile(c *Catalog, uri string) {
	switch strings.ToLower(path.Ext(uri)) {
	case ".dtd", ".ent", ".mod":
		name := path.Base(uri)
		if _, ok := c.dtdCatalog[name]; !ok {
			c.dtdCatalog[name] = uri
		}
	}
}

func fileExists(p string) bool {
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return true // remote URIs are assumed reachable; this resolver does not fetch
	}
	_, err := os.Stat(p)
	return err == nil
}

// makeAbsoluteBase resolves an xml:base attribute's value against the
// currently active base, without any on-disk existence requirement.
func makeAbsoluteBase(ref, activeBase string) string {
	return makeAbsolute(ref, activeBase, activeBase)
}

// makeAbsolute implements the resolution rule from the design notes: if
// ref is already absolute, it is returned unchanged; otherwise it is
// resolved against activeBase, falling back to workingDir if activeBase
// is empty.
func makeAbsolute(ref, activeBase, workingDir string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	base := activeBase
	if base == "" {
		base = workingDir
	}
	return filepath.Join(base, ref)
}
