// Package catalog implements the OASIS XML Catalogs resolver: loading a
// catalog document into the four identifier maps and two rewrite lists
// it defines, and the public/system/URI lookup algorithm over them.
package catalog

import "strings"

// rewrite is an ordered (prefix, replacement) pair from a rewriteSystem
// or rewriteURI entry. The first matching prefix wins.
type rewrite struct {
	prefix, replacement string
}

// Catalog aggregates the mappings and rewrite lists an OASIS XML
// Catalog document declares. Once loaded, a Catalog is immutable; it is
// safe to read concurrently from multiple validators.
type Catalog struct {
	publicCatalog map[string]string
	systemCatalog map[string]string
	uriCatalog    map[string]string
	dtdCatalog    map[string]string

	systemRewrites []rewrite
	uriRewrites    []rewrite

	base string // working directory used when no xml:base is in scope
}

// New creates an empty Catalog rooted at baseDir, the directory used to
// resolve relative URIs that have no active xml:base.
func New(baseDir string) *Catalog {
	return &Catalog{
		publicCatalog: make(map[string]string),
		systemCatalog: make(map[string]string),
		uriCatalog:    make(map[string]string),
		dtdCatalog:    make(map[string]string),
		base:          baseDir,
	}
}

// CatalogError reports a malformed catalog document. Catalog errors
// during a load are fatal to that catalog but never to the parse that
// triggered the load; the caller may proceed without resolution.
type CatalogError struct {
	Path    string
	Message string
}

func (e *CatalogError) Error() string {
	if e.Path != "" {
		return "catalog: " + e.Path + ": " + e.Message
	}
	return "catalog: " + e.Message
}

// ResolveEntity resolves an external identifier the way a DOCTYPE or
// schema import would present it: by public identifier first, falling
// back to the system identifier. A zero-value, false result is not an
// error; it means the identifier is unresolved and the caller decides
// what to do next.
func (c *Catalog) ResolveEntity(publicID, systemID string) (string, bool) {
	if publicID != "" {
		if uri, ok := c.MatchPublic(publicID); ok {
			return uri, true
		}
	}
	if systemID != "" {
		return c.MatchSystem(systemID)
	}
	return "", false
}

// MatchSystem resolves a system identifier: the rewrite rules are
// applied first, in order (the first matching prefix wins, and its
// rewritten form is the resolution), then an exact lookup in the
// system map, then a basename lookup in the DTD map.
func (c *Catalog) MatchSystem(sid string) (string, bool) {
	if rewritten, ok := applyRewrite(sid, c.systemRewrites); ok {
		return rewritten, true
	}
	if uri, ok := c.systemCatalog[sid]; ok {
		return uri, true
	}
	if uri, ok := c.dtdCatalog[basename(sid)]; ok {
		return uri, true
	}
	return "", false
}

// MatchPublic resolves a public identifier, unwrapping the
// "urn:publicid:" form first if present.
func (c *Catalog) MatchPublic(pid string) (string, bool) {
	pid = unwrapPublicIdURN(pid)
	uri, ok := c.publicCatalog[pid]
	return uri, ok
}

// MatchURI resolves a plain URI reference (as used by xsi:schemaLocation
// or an xs:import/xs:include schemaLocation): the rewrite rules are
// applied first, in order, then an exact lookup in the URI map.
func (c *Catalog) MatchURI(u string) (string, bool) {
	if rewritten, ok := applyRewrite(u, c.uriRewrites); ok {
		return rewritten, true
	}
	uri, ok := c.uriCatalog[u]
	return uri, ok
}

func applyRewrite(s string, rules []rewrite) (string, bool) {
	for _, r := range rules {
		if strings.HasPrefix(s, r.prefix) {
			return r.replacement + strings.TrimPrefix(s, r.prefix), true
		}
	}
	return "", false
}

func basename(s string) string {
	if i := strings.LastIndexAny(s, "/\\"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// unwrapPublicIdURN applies the OASIS public-identifier URN decoding
// rules to pid if it is of the form "urn:publicid:...", leaving any
// other string untouched. Substitution and percent-decoding run in a
// single pass so a character produced by a percent escape (e.g. "%3A"
// for a literal ':') is never re-substituted the way a raw ':' is.
func unwrapPublicIdURN(pid string) string {
	const prefix = "urn:publicid:"
	if !strings.HasPrefix(pid, prefix) {
		return pid
	}
	s := pid[len(prefix):]
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case ':':
			b.WriteString("//")
		case ';':
			b.WriteString("::")
		case '%':
			if i+2 < len(s) {
				if hi, ok := hexVal(s[i+1]); ok {
					if lo, ok := hexVal(s[i+2]); ok {
						b.WriteByte(hi<<4 | lo)
						i += 2
						continue
					}
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
