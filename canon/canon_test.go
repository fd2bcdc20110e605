package canon_test

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/xmlkit-go/xmlkit/canon"
	"github.com/xmlkit-go/xmlkit/dom"
	"github.com/xmlkit-go/xmlkit/reader"
	"github.com/xmlkit-go/xmlkit/scanner"
)

func xmlName(local string) xml.Name { return xml.Name{Local: local} }

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	h, err := reader.Open("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	sc := scanner.New("test", h)
	doc, err := dom.Parse(sc)
	if err != nil {
		t.Fatalf("dom.Parse: %v", err)
	}
	return doc
}

func canonicalize(t *testing.T, src string) string {
	t.Helper()
	doc := parse(t, src)
	out, err := canon.Marshal(doc)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	return string(out)
}

func TestMarshalAttributeOrderAndRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "attributes reordered lexicographically",
			in:   `<?xml version="1.0"?><r b="2" a="1"><c/></r>`,
			want: `<r a="1" b="2"><c></c></r>`,
		},
		{
			name: "reversed input attribute order still sorts the same",
			in:   `<r a="1" b="2"><c/></r>`,
			want: `<r a="1" b="2"><c></c></r>`,
		},
		{
			name: "no self closing tags",
			in:   `<empty/>`,
			want: `<empty></empty>`,
		},
		{
			name: "comments and xml declaration are omitted",
			in:   "<?xml version=\"1.0\"?><r><!-- note --><c/></r>",
			want: `<r><c></c></r>`,
		},
		{
			name: "PI with empty data gets a single space before ?>",
			in:   `<r><?foo?></r>`,
			want: `<r><?foo ?></r>`,
		},
		{
			name: "PI with data keeps it verbatim",
			in:   `<r><?foo bar?></r>`,
			want: `<r><?foo bar?></r>`,
		},
		{
			name: "character data escaping",
			in:   "<r>a &lt; b &amp;&amp; c &gt; d</r>",
			want: "<r>a &lt; b &amp;&amp; c &gt; d</r>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			have := canonicalize(t, tt.in)
			if have != tt.want {
				t.Fatalf("canonicalize(%q):\n have %q\n want %q", tt.in, have, tt.want)
			}
		})
	}
}

func TestMarshalIsIdempotent(t *testing.T) {
	doc := parse(t, `<r b="2" a="1"><c>text</c><d/></r>`)
	first, err := canon.Marshal(doc)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	doc2 := parse(t, string(first))
	second, err := canon.Marshal(doc2)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonicalization is not idempotent:\n first  %q\n second %q", first, second)
	}
}

// TestMarshalReescapesExpandedEntityText covers the double-entity case:
// parsing "&amp;amp;" yields the five literal characters "&amp;" in the
// tree, and canonicalization must re-escape the leading literal
// ampersand rather than pass the run through as if it were still a
// reference.
func TestMarshalReescapesExpandedEntityText(t *testing.T) {
	doc := parse(t, `<r>&amp;amp;</r>`)
	text, ok := doc.Root.Children[0].(*dom.Text)
	if !ok || text.Data != "&amp;" {
		t.Fatalf("expected the tree to hold the five literal characters %q, got %#v", "&amp;", doc.Root.Children[0])
	}

	first, err := canon.Marshal(doc)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	if want := `<r>&amp;amp;</r>`; string(first) != want {
		t.Fatalf("have %q want %q", first, want)
	}

	// Re-parsing the canonical bytes yields the same tree, so a second
	// canonicalization reproduces them exactly.
	second, err := canon.Marshal(parse(t, string(first)))
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonicalization is not idempotent over expanded entities:\n first  %q\n second %q", first, second)
	}
}

func TestMarshalPreservesNumericCharRefInAttribute(t *testing.T) {
	doc := dom.Document{}
	el := dom.NewElement(xmlName("r"))
	el.SetAttr(&dom.Attribute{Name: xmlName("title"), Value: "A&B", Lexical: "A&#38;B", Specified: true})
	doc.AppendChild(el)

	out, err := canon.Marshal(&doc)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	want := `<r title="A&#38;B"></r>`
	if string(out) != want {
		t.Fatalf("have %q want %q", out, want)
	}
}

func TestMarshalEscapesAttributeWithoutLexicalOverride(t *testing.T) {
	doc := dom.Document{}
	el := dom.NewElement(xmlName("r"))
	el.SetAttr(&dom.Attribute{Name: xmlName("title"), Value: "A&B", Specified: true})
	doc.AppendChild(el)

	out, err := canon.Marshal(&doc)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	want := `<r title="A&amp;B"></r>`
	if string(out) != want {
		t.Fatalf("have %q want %q", out, want)
	}
}
