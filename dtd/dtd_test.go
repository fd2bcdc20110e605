package dtd_test

import (
	"encoding/xml"
	"testing"

	"github.com/xmlkit-go/xmlkit/dtd"
	"github.com/xmlkit-go/xmlkit/grammar"
)

func TestParseElementAndAttlist(t *testing.T) {
	subset := `
	<!ELEMENT greeting (#PCDATA)>
	<!ATTLIST greeting
		lang CDATA "en"
		id ID #IMPLIED
		kind (a|b) #REQUIRED>
	`
	g, diags := dtd.Parse(subset, true, false)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	info, ok := g.Element(xml.Name{Local: "greeting"})
	if !ok {
		t.Fatalf("expected <greeting> to be declared")
	}
	if info.Content != grammar.ContentMixed {
		t.Fatalf("expected mixed content, got %v", info.Content)
	}

	var lang, kind grammar.AttributeDecl
	for _, a := range info.Attributes {
		switch a.Name.Local {
		case "lang":
			lang = a
		case "kind":
			kind = a
		}
	}
	if !lang.HasDefault || lang.Default != "en" {
		t.Fatalf("expected lang to default to %q, got %+v", "en", lang)
	}
	if kind.Use != grammar.AttrRequired {
		t.Fatalf("expected kind to be required, got %+v", kind)
	}
}

func TestParseElementOnlyContentModel(t *testing.T) {
	subset := `<!ELEMENT r (a, b+, (c|d)*)>`
	g, diags := dtd.Parse(subset, true, false)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	info, ok := g.Element(xml.Name{Local: "r"})
	if !ok {
		t.Fatalf("expected <r> to be declared")
	}
	if info.Content != grammar.ContentElementOnly {
		t.Fatalf("expected element-only content, got %v", info.Content)
	}
	seq, ok := info.Model.(grammar.SequenceParticle)
	if !ok || len(seq.Children) != 3 {
		t.Fatalf("expected a 3-member sequence, got %#v", info.Model)
	}
}

func TestParseEmptyAndAny(t *testing.T) {
	g, diags := dtd.Parse(`<!ELEMENT e EMPTY><!ELEMENT a ANY>`, true, false)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	e, _ := g.Element(xml.Name{Local: "e"})
	if e.Content != grammar.ContentEmpty {
		t.Fatalf("expected empty content, got %v", e.Content)
	}
	a, _ := g.Element(xml.Name{Local: "a"})
	if a.Content != grammar.ContentAny {
		t.Fatalf("expected any content, got %v", a.Content)
	}
}

func TestParseGeneralEntity(t *testing.T) {
	g, diags := dtd.Parse(`<!ENTITY copy "(c)">`, true, false)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	v, ok := g.Entity("copy")
	if !ok || v != "(c)" {
		t.Fatalf("expected entity copy to expand to %q, got %q (ok=%v)", "(c)", v, ok)
	}
}

func TestParseLaxModeDropsMalformedDeclaration(t *testing.T) {
	subset := `<!ELEMENT r EMPTY><!BOGUS broken><!ELEMENT s EMPTY>`
	g, diags := dtd.Parse(subset, false, true)
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %d: %v", len(diags), diags)
	}
	if _, ok := g.Element(xml.Name{Local: "r"}); !ok {
		t.Fatalf("expected <r> to still be declared despite the later malformed declaration")
	}
	if _, ok := g.Element(xml.Name{Local: "s"}); !ok {
		t.Fatalf("expected <s>, declared after the malformed one, to still be recovered")
	}
}

func TestParseStrictModeAbortsOnMalformedDeclaration(t *testing.T) {
	g, diags := dtd.Parse(`<!ELEMENT r EMPTY><!BOGUS broken>`, true, false)
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %d", len(diags))
	}
	if _, ok := g.Element(xml.Name{Local: "r"}); !ok {
		t.Fatalf("the declaration preceding the fault should still be recorded")
	}
}

func TestValidateValueNMTOKEN(t *testing.T) {
	g := dtd.New(true)
	if err := g.ValidateValue(xml.Name{Local: "NMTOKEN"}, "valid-token.1"); err != nil {
		t.Fatalf("expected a valid NMTOKEN to pass, got %v", err)
	}
	if err := g.ValidateValue(xml.Name{Local: "NMTOKEN"}, "has space"); err == nil {
		t.Fatalf("expected an NMTOKEN containing a space to fail")
	}
}
