package scanner_test

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xmlkit-go/xmlkit/reader"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// eventRecorder flattens the ContentHandler event stream into strings so
// a table test can assert on ordering and payloads at once.
type eventRecorder struct {
	events []string
}

func (r *eventRecorder) add(format string, args ...interface{}) error {
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return nil
}

func fmtName(space, local string) string {
	if space == "" {
		return local
	}
	return space + ":" + local
}

func (r *eventRecorder) StartDocument() error { return r.add("startDoc") }
func (r *eventRecorder) XMLDeclaration(version, encoding, standalone string) error {
	return r.add("xmlDecl(%s,%s,%s)", version, encoding, standalone)
}
func (r *eventRecorder) StartDTD(name, publicID, systemID string) error {
	return r.add("startDTD(%s,%s,%s)", name, publicID, systemID)
}
func (r *eventRecorder) InternalSubset(text string) error { return r.add("subset(%s)", text) }
func (r *eventRecorder) EndDTD() error                    { return r.add("endDTD") }
func (r *eventRecorder) StartElement(n xml.Name, attrs []scanner.Attr) error {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = fmtName(a.Name.Space, a.Name.Local) + "=" + a.Value
	}
	return r.add("start(%s)[%s]", fmtName(n.Space, n.Local), strings.Join(parts, " "))
}
func (r *eventRecorder) EndElement(n xml.Name) error {
	return r.add("end(%s)", fmtName(n.Space, n.Local))
}
func (r *eventRecorder) Characters(s string) error          { return r.add("chars(%s)", s) }
func (r *eventRecorder) IgnorableWhitespace(s string) error { return r.add("ws(%s)", s) }
func (r *eventRecorder) Comment(s string) error             { return r.add("comment(%s)", s) }
func (r *eventRecorder) ProcessingInstruction(target, data string) error {
	return r.add("pi(%s,%s)", target, data)
}
func (r *eventRecorder) StartCDATA() error               { return r.add("startCDATA") }
func (r *eventRecorder) EndCDATA() error                 { return r.add("endCDATA") }
func (r *eventRecorder) SkippedEntity(name string) error { return r.add("skipped(%s)", name) }
func (r *eventRecorder) EndDocument() error              { return r.add("endDoc") }

func scan(t *testing.T, src string) (*eventRecorder, error) {
	t.Helper()
	h, err := reader.Open("test.xml", strings.NewReader(src))
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	rec := &eventRecorder{}
	return rec, scanner.New("test.xml", h).Run(rec)
}

func TestScanEvents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "element with attribute and text",
			in:   `<a x="1">t</a>`,
			want: []string{"startDoc", "start(a)[x=1]", "chars(t)", "end(a)", "endDoc"},
		},
		{
			name: "self closing element emits matched start and end",
			in:   `<a/>`,
			want: []string{"startDoc", "start(a)[]", "end(a)", "endDoc"},
		},
		{
			name: "xml declaration",
			in:   `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><r/>`,
			want: []string{"startDoc", "xmlDecl(1.0,UTF-8,yes)", "start(r)[]", "end(r)", "endDoc"},
		},
		{
			name: "single quoted attribute values",
			in:   `<a x='1' y="2"/>`,
			want: []string{"startDoc", "start(a)[x=1 y=2]", "end(a)", "endDoc"},
		},
		{
			name: "PI with no data",
			in:   `<r><?foo?></r>`,
			want: []string{"startDoc", "start(r)[]", "pi(foo,)", "end(r)", "endDoc"},
		},
		{
			name: "PI with data",
			in:   `<r><?foo bar?></r>`,
			want: []string{"startDoc", "start(r)[]", "pi(foo,bar)", "end(r)", "endDoc"},
		},
		{
			name: "PI target starting with the letters xml is not a declaration",
			in:   `<?xml-stylesheet href="x.css"?><r/>`,
			want: []string{"startDoc", `pi(xml-stylesheet,href="x.css")`, "start(r)[]", "end(r)", "endDoc"},
		},
		{
			name: "comment",
			in:   `<r><!-- note --></r>`,
			want: []string{"startDoc", "start(r)[]", "comment( note )", "end(r)", "endDoc"},
		},
		{
			name: "CDATA is bracketed and may contain ]]",
			in:   `<r><![CDATA[a]]b<&]]></r>`,
			want: []string{"startDoc", "start(r)[]", "startCDATA", "chars(a]]b<&)", "endCDATA", "end(r)", "endDoc"},
		},
		{
			name: "DOCTYPE with external id and internal subset",
			in:   `<!DOCTYPE r PUBLIC "-//X//DTD" "http://example/x.dtd" [<!ELEMENT r EMPTY>]><r/>`,
			want: []string{
				"startDoc",
				"startDTD(r,-//X//DTD,http://example/x.dtd)",
				"subset(<!ELEMENT r EMPTY>)",
				"endDTD",
				"start(r)[]", "end(r)", "endDoc",
			},
		},
		{
			name: "predefined entities and character references expand in text",
			in:   `<r>&lt;&#65;&amp;</r>`,
			want: []string{"startDoc", "start(r)[]", "chars(<A&)", "end(r)", "endDoc"},
		},
		{
			name: "undeclared entity in text is left intact and reported as skipped",
			in:   `<r>&foo;</r>`,
			want: []string{"startDoc", "start(r)[]", "chars(&foo;)", "skipped(foo)", "end(r)", "endDoc"},
		},
		{
			name: "prefixed names keep the raw prefix",
			in:   `<p:a p:x="1"></p:a>`,
			want: []string{"startDoc", "start(p:a)[p:x=1]", "end(p:a)", "endDoc"},
		},
		{
			name: "carriage returns normalize to line feeds",
			in:   "<r>a\r\nb\rc</r>",
			want: []string{"startDoc", "start(r)[]", "chars(a\nb\nc)", "end(r)", "endDoc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := scan(t, tt.in)
			if err != nil {
				t.Fatalf("scan(%q): %v", tt.in, err)
			}
			if got := strings.Join(rec.events, "|"); got != strings.Join(tt.want, "|") {
				t.Fatalf("scan(%q):\n have %v\n want %v", tt.in, rec.events, tt.want)
			}
		})
	}
}

// TestAttributeLexicalValue confirms the pre-expansion text of an
// attribute value is preserved alongside the expanded value, for the
// canonicalizer's character-reference preservation rule.
func TestAttributeLexicalValue(t *testing.T) {
	h, err := reader.Open("test.xml", strings.NewReader(`<r t="A&#38;B"/>`))
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	var got scanner.Attr
	rec := &attrRecorder{out: &got}
	if err := scanner.New("test.xml", h).Run(rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Value != "A&B" {
		t.Errorf("expanded value: have %q want %q", got.Value, "A&B")
	}
	if got.Lexical != "A&#38;B" {
		t.Errorf("lexical value: have %q want %q", got.Lexical, "A&#38;B")
	}
}

type attrRecorder struct {
	scanner.BaseHandler
	out *scanner.Attr
}

func (r *attrRecorder) StartElement(n xml.Name, attrs []scanner.Attr) error {
	if len(attrs) > 0 {
		*r.out = attrs[0]
	}
	return nil
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind scanner.ErrorKind
	}{
		{"duplicate attribute", `<a x="1" x="2"/>`, scanner.DuplicateAttribute},
		{"unmatched end tag", `<a></b></a>`, scanner.UnmatchedEndTag},
		{"unterminated comment", `<a><!-- never closed</a>`, scanner.UnterminatedComment},
		{"unterminated CDATA", `<a><![CDATA[stuck</a>`, scanner.UnterminatedCDATA},
		{"unterminated PI", `<a><?pi stuck</a>`, scanner.UnterminatedPI},
		{"double hyphen inside comment", `<a><!-- a -- b --></a>`, scanner.MalformedDecl},
		{"unsupported version", `<?xml version="2.0"?><r/>`, scanner.UnsupportedVersion},
		{"second root element", `<a/><b/>`, scanner.MalformedTag},
		{"prolog only", `<?xml version="1.0"?>`, scanner.MalformedTag},
		{"unclosed element at EOF", `<a><b>`, scanner.MalformedTag},
		{"literal ]]> in character data", `<a>x]]>y</a>`, scanner.IllegalChar},
		{"attribute without value", `<a x></a>`, scanner.MalformedTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scan(t, tt.in)
			if err == nil {
				t.Fatalf("scan(%q): expected an error", tt.in)
			}
			var pe *scanner.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("scan(%q): expected *ParseError, got %T: %v", tt.in, err, err)
			}
			if pe.Kind != tt.kind {
				t.Fatalf("scan(%q): have kind %v want %v (err: %v)", tt.in, pe.Kind, tt.kind, err)
			}
		})
	}
}

// TestParseErrorPosition confirms line/column tracking survives
// multi-line input.
func TestParseErrorPosition(t *testing.T) {
	_, err := scan(t, "<a>\n  <b x=\"1\" x=\"2\"/>\n</a>")
	var pe *scanner.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Pos.Line != 2 {
		t.Errorf("have line %d want 2 (err: %v)", pe.Pos.Line, err)
	}
}

// TestHandlerAbortStopsScan confirms an error returned from a handler
// method is wrapped in *ParserAbort and ends the scan.
func TestHandlerAbortStopsScan(t *testing.T) {
	h, err := reader.Open("test.xml", strings.NewReader(`<a><b/></a>`))
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	cause := errors.New("stop here")
	ab := &abortingHandler{cause: cause}
	err = scanner.New("test.xml", h).Run(ab)
	var pa *scanner.ParserAbort
	if !errors.As(err, &pa) {
		t.Fatalf("expected *ParserAbort, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the abort to wrap the handler's cause, got %v", err)
	}
	if ab.starts != 1 {
		t.Fatalf("expected the scan to stop after the first start tag, saw %d", ab.starts)
	}
}

type abortingHandler struct {
	scanner.BaseHandler
	cause  error
	starts int
}

func (a *abortingHandler) StartElement(xml.Name, []scanner.Attr) error {
	a.starts++
	return a.cause
}
