package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmlkit-go/xmlkit/catalog"
)

// writeFiles materializes a file tree under a fresh temp dir and
// returns its root. Keys are slash-separated relative paths.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestResolveEntityPublicThenSystem(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"x.dtd": "<!ELEMENT r EMPTY>",
		"catalog.xml": `<catalog>
			<public publicId="-//X//DTD" uri="x.dtd"/>
			<system systemId="http://example/x.dtd" uri="x.dtd"/>
		</catalog>`,
	})

	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	want := filepath.Join(dir, "x.dtd")

	// public id wins when mapped
	uri, ok := c.ResolveEntity("-//X//DTD", "http://example/x.dtd")
	require.True(t, ok)
	assert.Equal(t, want, uri)

	// with no public match, the system id resolves
	uri, ok = c.ResolveEntity("-//Unmapped//DTD", "http://example/x.dtd")
	require.True(t, ok)
	assert.Equal(t, want, uri)

	// a system id mapped nowhere still resolves through the DTD
	// basename index, since x.dtd was registered by extension
	uri, ok = c.ResolveEntity("", "http://elsewhere/deep/path/x.dtd")
	require.True(t, ok)
	assert.Equal(t, want, uri)

	// and a completely unknown identifier is not an error, just a miss
	_, ok = c.ResolveEntity("-//Nope//DTD", "http://example/nope.dtd")
	assert.False(t, ok)
}

func TestMatchPublicUnwrapsURN(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"x.dtd": "<!ELEMENT r EMPTY>",
		"catalog.xml": `<catalog>
			<public publicId="-//X//DTD" uri="x.dtd"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchPublic("urn:publicid:-:X:DTD")
	require.True(t, ok, "the urn:publicid: form must unwrap to the registered public id")
	assert.Equal(t, filepath.Join(dir, "x.dtd"), uri)
}

func TestRewriteSystemFirstMatchWins(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"catalog.xml": `<catalog>
			<rewriteSystem systemIdStartString="http://example/dtds/" rewritePrefix="/local/dtds/"/>
			<rewriteSystem systemIdStartString="http://example/" rewritePrefix="/local/other/"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchSystem("http://example/dtds/x.dtd")
	require.True(t, ok)
	assert.Equal(t, "/local/dtds/x.dtd", uri)

	uri, ok = c.MatchSystem("http://example/misc/y.dtd")
	require.True(t, ok)
	assert.Equal(t, "/local/other/misc/y.dtd", uri)

	_, ok = c.MatchSystem("http://unrelated/z.dtd")
	assert.False(t, ok)
}

// TestRewriteAppliedBeforeExactEntry pins the lookup order: when an
// identifier both matches a rewrite prefix and has an exact map entry,
// the rewrite is applied first and its result is the resolution.
func TestRewriteAppliedBeforeExactEntry(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"x.dtd":      "<!ELEMENT r EMPTY>",
		"schema.xsd": "<schema/>",
		"catalog.xml": `<catalog>
			<system systemId="http://example/x.dtd" uri="x.dtd"/>
			<rewriteSystem systemIdStartString="http://example/" rewritePrefix="/rw/"/>
			<uri name="http://example/ns/schema.xsd" uri="schema.xsd"/>
			<rewriteURI uriStartString="http://example/ns/" rewritePrefix="/rw/ns/"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchSystem("http://example/x.dtd")
	require.True(t, ok)
	assert.Equal(t, "/rw/x.dtd", uri, "the rewrite must win over the exact system entry")

	uri, ok = c.MatchURI("http://example/ns/schema.xsd")
	require.True(t, ok)
	assert.Equal(t, "/rw/ns/schema.xsd", uri, "the rewrite must win over the exact uri entry")
}

func TestMatchURI(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"schema.xsd": "<schema/>",
		"catalog.xml": `<catalog>
			<uri name="http://example/ns/schema.xsd" uri="schema.xsd"/>
			<rewriteURI uriStartString="http://example/rewrite/" rewritePrefix="/local/"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchURI("http://example/ns/schema.xsd")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "schema.xsd"), uri)

	uri, ok = c.MatchURI("http://example/rewrite/deep/s.xsd")
	require.True(t, ok)
	assert.Equal(t, "/local/deep/s.xsd", uri)
}

func TestNextCatalogExistingEntriesWin(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"first.dtd":  "<!ELEMENT r EMPTY>",
		"second.dtd": "<!ELEMENT r EMPTY>",
		"catalog.xml": `<catalog>
			<public publicId="-//X//DTD" uri="first.dtd"/>
			<nextCatalog catalog="next.xml"/>
		</catalog>`,
		"next.xml": `<catalog>
			<public publicId="-//X//DTD" uri="second.dtd"/>
			<public publicId="-//Y//DTD" uri="second.dtd"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchPublic("-//X//DTD")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "first.dtd"), uri, "the first-loaded entry must win")

	uri, ok = c.MatchPublic("-//Y//DTD")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "second.dtd"), uri, "entries only the next catalog has must merge in")
}

func TestNextCatalogCycleTerminates(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.dtd": "<!ELEMENT r EMPTY>",
		"catalog.xml": `<catalog>
			<public publicId="-//A//DTD" uri="a.dtd"/>
			<nextCatalog catalog="other.xml"/>
		</catalog>`,
		"other.xml": `<catalog>
			<nextCatalog catalog="catalog.xml"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	_, ok := c.MatchPublic("-//A//DTD")
	assert.True(t, ok)
}

func TestNestedXMLBaseInGroup(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sub/x.dtd": "<!ELEMENT r EMPTY>",
		"top.dtd":   "<!ELEMENT r EMPTY>",
		"catalog.xml": `<catalog>
			<group xml:base="sub">
				<public publicId="-//Sub//DTD" uri="x.dtd"/>
			</group>
			<public publicId="-//Top//DTD" uri="top.dtd"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	uri, ok := c.MatchPublic("-//Sub//DTD")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "sub", "x.dtd"), uri)

	uri, ok = c.MatchPublic("-//Top//DTD")
	require.True(t, ok, "the base must be restored after the group is walked")
	assert.Equal(t, filepath.Join(dir, "top.dtd"), uri)
}

func TestEntriesForMissingFilesAreSkipped(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"catalog.xml": `<catalog>
			<public publicId="-//Gone//DTD" uri="gone.dtd"/>
			<system systemId="http://example/gone.dtd" uri="gone.dtd"/>
		</catalog>`,
	})
	c, err := catalog.Load(filepath.Join(dir, "catalog.xml"))
	require.NoError(t, err)

	_, ok := c.MatchPublic("-//Gone//DTD")
	assert.False(t, ok)
	_, ok = c.MatchSystem("http://example/gone.dtd")
	assert.False(t, ok)
}

func TestMalformedCatalogIsAHardError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"notcatalog.xml": `<directory/>`,
		"missingattr.xml": `<catalog>
			<public publicId="-//X//DTD"/>
		</catalog>`,
	})

	_, err := catalog.Load(filepath.Join(dir, "notcatalog.xml"))
	var ce *catalog.CatalogError
	require.ErrorAs(t, err, &ce, "a root not named catalog must be rejected")

	_, err = catalog.Load(filepath.Join(dir, "missingattr.xml"))
	require.ErrorAs(t, err, &ce, "a public entry without uri must be rejected")
}
