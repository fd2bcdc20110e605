// Package canon serializes a dom.Document to W3C Canonical XML 1.0
// (inclusive form, no comments): a byte-exact, deterministic rendering
// that two differently-formatted but semantically equal documents
// reduce to, used by downstream signers and by round-trip tests.
//
// The algorithm structure (a recursive node writer driven by node kind,
// attributes sorted before being written) follows the shape of
// goxmldsig's and xmlsig's canonicalizers; the escaping table (tab/LF/CR
// numeric references, preference for a stored lexical form) follows
// ucarion/c14n's, adapted from a token-stream walk to a walk over an
// already-built dom.Document tree.
package canon

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/xmlkit-go/xmlkit/dom"
)

// Marshal renders doc as canonical XML and returns the resulting bytes.
// It never fails on a well-formed Document; the error return exists for
// symmetry with the rest of the toolkit and is always nil today.
func Marshal(doc *dom.Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range doc.Children {
		writeNode(&buf, n)
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n dom.Node) {
	switch v := n.(type) {
	case *dom.XMLDeclaration, *dom.DocumentType, *dom.Comment:
		// omitted per the canonical form
	case *dom.Element:
		writeElement(buf, v)
	case *dom.ProcessingInstruction:
		writePI(buf, v)
	case *dom.Text:
		buf.WriteString(escapeText(v.Data))
	case *dom.CDATA:
		buf.WriteString(escapeText(v.Data))
	}
}

func writeElement(buf *bytes.Buffer, el *dom.Element) {
	buf.WriteByte('<')
	buf.WriteString(fullName(el.Name.Space, el.Name.Local))

	attrs := el.Attrs()
	sort.Slice(attrs, func(i, j int) bool {
		return fullName(attrs[i].Name.Space, attrs[i].Name.Local) < fullName(attrs[j].Name.Space, attrs[j].Name.Local)
	})
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(fullName(a.Name.Space, a.Name.Local))
		buf.WriteString(`="`)
		buf.WriteString(attrValueText(a))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')

	for _, c := range el.Children {
		writeNode(buf, c)
	}

	buf.WriteString("</")
	buf.WriteString(fullName(el.Name.Space, el.Name.Local))
	buf.WriteByte('>')
}

func writePI(buf *bytes.Buffer, pi *dom.ProcessingInstruction) {
	buf.WriteString("<?")
	buf.WriteString(pi.Target)
	if strings.TrimSpace(pi.Data) == "" {
		buf.WriteString(" ?>")
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(pi.Data)
	buf.WriteString("?>")
}

func fullName(space, local string) string {
	if space == "" {
		return local
	}
	return space + ":" + local
}

// attrValueText renders an attribute's value for the canonical form,
// preferring its stored lexical text verbatim when that text carries a
// numeric character reference: the reference's literal bytes, not the
// character they denote, are what a signer over the canonical form is
// meant to see (S6 in the design notes).
func attrValueText(a *dom.Attribute) string {
	if a.Lexical != "" && hasNumericCharRef(a.Lexical) {
		return a.Lexical
	}
	return escapeAttrValue(a.Value)
}

func hasNumericCharRef(s string) bool {
	for {
		i := strings.Index(s, "&#")
		if i < 0 {
			return false
		}
		rest := s[i+2:]
		j := strings.IndexByte(rest, ';')
		if j < 0 {
			return false
		}
		digits := rest[:j]
		if strings.HasPrefix(digits, "x") || strings.HasPrefix(digits, "X") {
			digits = digits[1:]
			if digits != "" {
				if _, err := strconv.ParseUint(digits, 16, 32); err == nil {
					return true
				}
			}
		} else if digits != "" {
			if _, err := strconv.ParseUint(digits, 10, 32); err == nil {
				return true
			}
		}
		s = rest[j+1:]
	}
}

func escapeAttrValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\t':
			b.WriteString("&#9;")
		case '\n':
			b.WriteString("&#10;")
		case '\r':
			b.WriteString("&#13;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeText renders character content (Text or CDATA data) per the
// canonical form's text rules. The scanner has already expanded every
// predefined entity and character reference by the time text reaches
// the tree, so every character here is a literal one and escaping is
// unconditional: a Text run reading "&amp;" is five literal characters
// (the product of parsing "&amp;amp;") and must come back out as
// "&amp;amp;", never pass through as-is.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\r':
			b.WriteString("&#13;")
		case '\n':
			b.WriteString("&#10;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
