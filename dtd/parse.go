package dtd

import (
	"encoding/xml"
	"strings"

	"github.com/xmlkit-go/xmlkit/grammar"
)

// Parse reads the markup declarations in a DTD subset (as captured by
// the scanner's InternalSubset event, or concatenated with an external
// subset's text) and returns the resulting Grammar. In lax mode a
// malformed declaration is dropped and recorded in diagnostics rather
// than aborting the load; in strict (validating) mode the first
// malformed declaration is a fatal *SchemaLoadError.
func Parse(subset string, validating, lax bool) (*Grammar, []error) {
	g := New(validating)
	p := &dtdParser{s: subset, g: g}
	var diags []error
	for p.skipMisc(); p.i < len(p.s); p.skipMisc() {
		if p.i >= len(p.s) {
			break
		}
		if err := p.declaration(); err != nil {
			diags = append(diags, err)
			if !lax {
				return g, diags
			}
			p.skipToNextDecl()
		}
	}
	return g, diags
}

type dtdParser struct {
	s string
	i int
	g *Grammar
}

func (p *dtdParser) skipMisc() {
	for p.i < len(p.s) {
		switch {
		case p.s[p.i] == ' ' || p.s[p.i] == '\t' || p.s[p.i] == '\n' || p.s[p.i] == '\r':
			p.i++
		case strings.HasPrefix(p.s[p.i:], "<!--"):
			if end := strings.Index(p.s[p.i+4:], "-->"); end >= 0 {
				p.i += 4 + end + 3
			} else {
				p.i = len(p.s)
			}
		case strings.HasPrefix(p.s[p.i:], "<?"):
			if end := strings.Index(p.s[p.i+2:], "?>"); end >= 0 {
				p.i += 2 + end + 2
			} else {
				p.i = len(p.s)
			}
		case p.s[p.i] == '%':
			// parameter-entity reference in markup; not expanded.
			if end := strings.IndexByte(p.s[p.i:], ';'); end >= 0 {
				p.i += end + 1
			} else {
				p.i = len(p.s)
			}
		default:
			return
		}
	}
}

func (p *dtdParser) skipToNextDecl() {
	if idx := strings.Index(p.s[p.i:], ">"); idx >= 0 {
		p.i += idx + 1
	} else {
		p.i = len(p.s)
	}
}

func (p *dtdParser) declaration() error {
	switch {
	case strings.HasPrefix(p.s[p.i:], "<!ELEMENT"):
		return p.elementDecl()
	case strings.HasPrefix(p.s[p.i:], "<!ATTLIST"):
		return p.attlistDecl()
	case strings.HasPrefix(p.s[p.i:], "<!ENTITY"):
		return p.entityDecl()
	case strings.HasPrefix(p.s[p.i:], "<!NOTATION"):
		p.skipToNextDecl()
		return nil
	default:
		return &SchemaLoadError{Message: "unrecognized markup declaration"}
	}
}

func (p *dtdParser) word() string {
	p.skipSpace()
	start := p.i
	for p.i < len(p.s) && !isSpaceByte(p.s[p.i]) && p.s[p.i] != '>' && p.s[p.i] != '(' {
		p.i++
	}
	return p.s[start:p.i]
}

func (p *dtdParser) skipSpace() {
	for p.i < len(p.s) && isSpaceByte(p.s[p.i]) {
		p.i++
	}
}

func isSpaceByte(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (p *dtdParser) elementDecl() error {
	p.i += len("<!ELEMENT")
	name := p.word()
	if name == "" {
		return &SchemaLoadError{Message: "<!ELEMENT> missing name"}
	}
	p.skipSpace()
	kind, model, err := p.contentSpec()
	if err != nil {
		return err
	}
	p.skipSpace()
	if p.i >= len(p.s) || p.s[p.i] != '>' {
		return &SchemaLoadError{Message: "<!ELEMENT " + name + "> not terminated"}
	}
	p.i++
	qn := xml.Name{Local: name}
	p.g.elements[qn] = ElementDecl{Name: qn, Content: kind, Model: model}
	return nil
}

func (p *dtdParser) contentSpec() (grammar.ContentKind, grammar.Particle, error) {
	switch {
	case strings.HasPrefix(p.s[p.i:], "EMPTY"):
		p.i += len("EMPTY")
		return grammar.ContentEmpty, nil, nil
	case strings.HasPrefix(p.s[p.i:], "ANY"):
		p.i += len("ANY")
		return grammar.ContentAny, nil, nil
	case p.i < len(p.s) && p.s[p.i] == '(':
		return p.parenContent()
	default:
		return 0, nil, &SchemaLoadError{Message: "expected content specification"}
	}
}

// parenContent parses a (#PCDATA...) mixed spec or a children content
// model, returning the appropriate ContentKind and Particle tree.
func (p *dtdParser) parenContent() (grammar.ContentKind, grammar.Particle, error) {
	save := p.i
	p.i++ // '('
	p.skipSpace()
	if strings.HasPrefix(p.s[p.i:], "#PCDATA") {
		p.i += len("#PCDATA")
		var names []string
		for {
			p.skipSpace()
			if p.i < len(p.s) && p.s[p.i] == '|' {
				p.i++
				p.skipSpace()
				names = append(names, p.nameToken())
				continue
			}
			break
		}
		p.skipSpace()
		if p.i >= len(p.s) || p.s[p.i] != ')' {
			return 0, nil, &SchemaLoadError{Message: "unterminated mixed content model"}
		}
		p.i++
		if p.i < len(p.s) && p.s[p.i] == '*' {
			p.i++
		}
		children := make([]grammar.Particle, len(names))
		for i, n := range names {
			children[i] = grammar.ElementParticle{Name: xml.Name{Local: n}, Min: 0, Max: grammar.Unbounded}
		}
		return grammar.ContentMixed, grammar.ChoiceParticle{Children: children, Min: 0, Max: grammar.Unbounded}, nil
	}
	p.i = save
	part, err := p.particle()
	if err != nil {
		return 0, nil, err
	}
	return grammar.ContentElementOnly, part, nil
}

func (p *dtdParser) nameToken() string {
	start := p.i
	for p.i < len(p.s) && strings.IndexByte("|),(?*+", p.s[p.i]) < 0 && !isSpaceByte(p.s[p.i]) {
		p.i++
	}
	return p.s[start:p.i]
}

// particle parses a children content-model group: (cp,cp,...) or
// (cp|cp|...), possibly nested, each cp being a name, or a parenthesized
// sub-group, optionally suffixed with ?, *, or +.
func (p *dtdParser) particle() (grammar.Particle, error) {
	p.skipSpace()
	if p.i < len(p.s) && p.s[p.i] == '(' {
		p.i++
		var children []grammar.Particle
		sep := byte(0)
		for {
			p.skipSpace()
			child, err := p.particle()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
			p.skipSpace()
			if p.i >= len(p.s) {
				return nil, &SchemaLoadError{Message: "unterminated content model group"}
			}
			if p.s[p.i] == ',' || p.s[p.i] == '|' {
				if sep == 0 {
					sep = p.s[p.i]
				} else if sep != p.s[p.i] {
					return nil, &SchemaLoadError{Message: "cannot mix ',' and '|' in one content model group"}
				}
				p.i++
				continue
			}
			break
		}
		p.skipSpace()
		if p.i >= len(p.s) || p.s[p.i] != ')' {
			return nil, &SchemaLoadError{Message: "unterminated content model group"}
		}
		p.i++
		min, max := p.occurs()
		if sep == '|' {
			return grammar.ChoiceParticle{Children: children, Min: min, Max: max}, nil
		}
		return grammar.SequenceParticle{Children: children, Min: min, Max: max}, nil
	}
	name := p.nameToken()
	if name == "" {
		return nil, &SchemaLoadError{Message: "expected element name in content model"}
	}
	min, max := p.occurs()
	return grammar.ElementParticle{Name: xml.Name{Local: name}, Min: min, Max: max}, nil
}

func (p *dtdParser) occurs() (int, int) {
	if p.i >= len(p.s) {
		return 1, 1
	}
	switch p.s[p.i] {
	case '?':
		p.i++
		return 0, 1
	case '*':
		p.i++
		return 0, grammar.Unbounded
	case '+':
		p.i++
		return 1, grammar.Unbounded
	default:
		return 1, 1
	}
}

func (p *dtdParser) attlistDecl() error {
	p.i += len("<!ATTLIST")
	elemName := p.word()
	if elemName == "" {
		return &SchemaLoadError{Message: "<!ATTLIST> missing element name"}
	}
	qn := xml.Name{Local: elemName}
	for {
		p.skipSpace()
		if p.i < len(p.s) && p.s[p.i] == '>' {
			p.i++
			return nil
		}
		if p.i >= len(p.s) {
			return &SchemaLoadError{Message: "<!ATTLIST " + elemName + "> not terminated"}
		}
		attrName := p.word()
		if attrName == "" {
			return &SchemaLoadError{Message: "expected attribute name in <!ATTLIST " + elemName + ">"}
		}
		typeName, err := p.attType()
		if err != nil {
			return err
		}
		use, def, hasDefault, fixed, hasFixed, err := p.defaultDecl()
		if err != nil {
			return err
		}
		p.g.attlists[qn] = append(p.g.attlists[qn], grammar.AttributeDecl{
			Name:       xml.Name{Local: attrName},
			Type:       xml.Name{Local: typeName},
			Use:        use,
			Default:    def,
			HasDefault: hasDefault,
			Fixed:      fixed,
			HasFixed:   hasFixed,
		})
	}
}

func (p *dtdParser) attType() (string, error) {
	p.skipSpace()
	if p.i < len(p.s) && (strings.HasPrefix(p.s[p.i:], "NOTATION") || p.s[p.i] == '(') {
		// NOTATION (a|b) or an enumeration (a|b): skip the group,
		// treat the attribute as an NMTOKEN for value-shape purposes.
		if strings.HasPrefix(p.s[p.i:], "NOTATION") {
			p.i += len("NOTATION")
			p.skipSpace()
		}
		if p.i >= len(p.s) || p.s[p.i] != '(' {
			return "", &SchemaLoadError{Message: "expected enumeration after NOTATION"}
		}
		depth := 0
		for p.i < len(p.s) {
			if p.s[p.i] == '(' {
				depth++
			} else if p.s[p.i] == ')' {
				depth--
				if depth == 0 {
					p.i++
					break
				}
			}
			p.i++
		}
		return "NMTOKEN", nil
	}
	t := p.word()
	if t == "" {
		return "", &SchemaLoadError{Message: "expected attribute type"}
	}
	return t, nil
}

func (p *dtdParser) defaultDecl() (grammar.AttrUse, string, bool, string, bool, error) {
	p.skipSpace()
	switch {
	case strings.HasPrefix(p.s[p.i:], "#REQUIRED"):
		p.i += len("#REQUIRED")
		return grammar.AttrRequired, "", false, "", false, nil
	case strings.HasPrefix(p.s[p.i:], "#IMPLIED"):
		p.i += len("#IMPLIED")
		return grammar.AttrOptional, "", false, "", false, nil
	case strings.HasPrefix(p.s[p.i:], "#FIXED"):
		p.i += len("#FIXED")
		p.skipSpace()
		v, err := p.quoted()
		if err != nil {
			return 0, "", false, "", false, err
		}
		return grammar.AttrOptional, "", false, v, true, nil
	default:
		v, err := p.quoted()
		if err != nil {
			return 0, "", false, "", false, err
		}
		return grammar.AttrOptional, v, true, "", false, nil
	}
}

func (p *dtdParser) quoted() (string, error) {
	if p.i >= len(p.s) || (p.s[p.i] != '"' && p.s[p.i] != '\'') {
		return "", &SchemaLoadError{Message: "expected quoted literal"}
	}
	q := p.s[p.i]
	p.i++
	start := p.i
	for p.i < len(p.s) && p.s[p.i] != q {
		p.i++
	}
	if p.i >= len(p.s) {
		return "", &SchemaLoadError{Message: "unterminated quoted literal"}
	}
	v := p.s[start:p.i]
	p.i++
	return v, nil
}

func (p *dtdParser) entityDecl() error {
	p.i += len("<!ENTITY")
	p.skipSpace()
	isParam := false
	if p.i < len(p.s) && p.s[p.i] == '%' {
		isParam = true
		p.i++
		p.skipSpace()
	}
	name := p.word()
	if name == "" {
		return &SchemaLoadError{Message: "<!ENTITY> missing name"}
	}
	p.skipSpace()
	if p.i < len(p.s) && (strings.HasPrefix(p.s[p.i:], "SYSTEM") || strings.HasPrefix(p.s[p.i:], "PUBLIC")) {
		// external entity: the literal value is not available without
		// fetching through a catalog, which is out of the DTD
		// package's scope; record a marker and move on.
		p.skipToNextDecl()
		if isParam {
			p.g.paramEnts[name] = ""
		} else {
			p.g.entities[name] = ""
		}
		return nil
	}
	val, err := p.quoted()
	if err != nil {
		return err
	}
	p.skipSpace()
	if p.i >= len(p.s) || p.s[p.i] != '>' {
		return &SchemaLoadError{Message: "<!ENTITY " + name + "> not terminated"}
	}
	p.i++
	if isParam {
		p.g.paramEnts[name] = val
	} else {
		p.g.entities[name] = val
	}
	return nil
}
