// Package scanner implements the hand-written, character-by-character
// XML 1.0/1.1 recognizer and the SAX-style event dispatcher that drives
// a ContentHandler from it. The scanner is single-threaded and
// synchronous: no callback suspends, and a handler call always returns
// before the next event is produced.
package scanner

import (
	"encoding/xml"
	"strings"

	"github.com/xmlkit-go/xmlkit/reader"
)

// Scanner drives a ContentHandler over a single XML document. It reads
// through the reader.Handle for the lifetime of the scan; it does not
// close the underlying stream, which stays with whoever opened it.
type Scanner struct {
	src      *source
	h        ContentHandler
	stack    []xml.Name
	sawRoot  bool
	sawDecl  bool
}

// New creates a Scanner that reads character data through h, reporting
// path in diagnostics.
func New(path string, h *reader.Handle) *Scanner {
	return &Scanner{src: newSource(path, h)}
}

// Run drives handler with events parsed from the scanner's source until
// end of input, a malformed construct, or the handler aborts. It always
// calls StartDocument before the first other event and EndDocument
// (when no fatal error occurred) after the last.
func (sc *Scanner) Run(handler ContentHandler) (err error) {
	sc.h = handler
	if err = sc.call(handler.StartDocument()); err != nil {
		return err
	}
	for sc.src.dataAvailable() {
		sc.src.compact()
		if err = sc.step(); err != nil {
			if sc.src.err != nil {
				return sc.src.err
			}
			return err
		}
	}
	if sc.src.err != nil {
		return sc.src.err
	}
	if len(sc.stack) > 0 {
		return &ParseError{Kind: MalformedTag, Pos: sc.src.pos(), Message: "unexpected end of input inside <" + sc.stack[len(sc.stack)-1].Local + ">"}
	}
	if !sc.sawRoot {
		return &ParseError{Kind: MalformedTag, Pos: sc.src.pos(), Message: "document has no root element"}
	}
	return sc.call(handler.EndDocument())
}

func (sc *Scanner) call(err error) error {
	if err != nil {
		return &ParserAbort{Cause: err}
	}
	return nil
}

// step recognizes and dispatches exactly one top-level construct,
// trying recognizers in a fixed priority order so that, e.g., a
// "<!DOCTYPE" prefix is never mistaken for a plain element start.
func (sc *Scanner) step() error {
	switch {
	case sc.hasXMLDeclPrefix() && !sc.sawDecl && !sc.sawRoot && len(sc.stack) == 0:
		return sc.scanXMLDecl()
	case sc.src.hasPrefix("<!DOCTYPE"):
		return sc.scanDoctype()
	case sc.src.hasPrefix("<!--"):
		return sc.scanComment()
	case sc.src.hasPrefix("<?"):
		return sc.scanPI()
	case sc.src.hasPrefix("<![CDATA["):
		return sc.scanCDATA()
	case sc.src.hasPrefix("</"):
		return sc.scanEndTag()
	case sc.src.hasPrefix("<"):
		return sc.scanStartTag()
	default:
		return sc.scanCharData()
	}
}

// hasXMLDeclPrefix distinguishes the "<?xml " declaration from a
// processing instruction whose target merely starts with those letters,
// such as <?xml-stylesheet ... ?>.
func (sc *Scanner) hasXMLDeclPrefix() bool {
	p, err := sc.src.peek(6)
	if err != nil || len(p) < 6 || p[:5] != "<?xml" {
		return false
	}
	switch p[5] {
	case ' ', '\t', '\n', '\r', '?':
		return true
	}
	return false
}

func isNameByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '>', '/', '=', '<', '?':
		return false
	default:
		return true
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (sc *Scanner) skipSpace() { sc.src.readWhile(isSpace) }

func (sc *Scanner) readName() (string, error) {
	name := sc.src.readWhile(isNameByte)
	if name == "" {
		return "", &ParseError{Kind: MalformedTag, Pos: sc.src.pos(), Message: "expected a name"}
	}
	return name, nil
}

func splitQName(s string) xml.Name {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return xml.Name{Space: s[:i], Local: s[i+1:]}
	}
	return xml.Name{Local: s}
}

// normalizeNewlines applies the XML end-of-line handling rule: every
// CRLF pair and every lone CR becomes a single LF.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// --- XML declaration -------------------------------------------------

func (sc *Scanner) scanXMLDecl() error {
	start := sc.src.pos()
	sc.src.advance(len("<?xml"))
	attrs, ok := sc.scanPseudoAttrs("?>")
	if !ok {
		return &ParseError{Kind: MalformedDecl, Pos: start, Message: "unterminated XML declaration"}
	}
	version := attrs["version"]
	if version != "1.0" && version != "1.1" {
		return &ParseError{Kind: UnsupportedVersion, Pos: start, Message: "unsupported XML version " + version}
	}
	sc.sawDecl = true
	return sc.call(sc.h.XMLDeclaration(version, attrs["encoding"], attrs["standalone"]))
}

// scanPseudoAttrs parses name="value" pairs (as used by <?xml ... ?>)
// up to and including the literal terminator, e.g. "?>".
func (sc *Scanner) scanPseudoAttrs(terminator string) (map[string]string, bool) {
	attrs := make(map[string]string)
	for {
		sc.skipSpace()
		if sc.src.hasPrefix(terminator) {
			sc.src.advance(len(terminator))
			return attrs, true
		}
		name, err := sc.readName()
		if err != nil {
			return attrs, false
		}
		sc.skipSpace()
		if !sc.src.hasPrefix("=") {
			return attrs, false
		}
		sc.src.advance(1)
		sc.skipSpace()
		val, ok := sc.scanQuoted()
		if !ok {
			return attrs, false
		}
		attrs[name] = val
	}
}

func (sc *Scanner) scanQuoted() (string, bool) {
	q, err := sc.src.peek(1)
	if err != nil || len(q) == 0 || (q[0] != '"' && q[0] != '\'') {
		return "", false
	}
	quote := q[0]
	sc.src.advance(1)
	val, terminated := sc.src.readUntil(string(quote))
	if !terminated {
		return "", false
	}
	return val, true
}

// --- comments ----------------------------------------------------------

func (sc *Scanner) scanComment() error {
	start := sc.src.pos()
	sc.src.advance(len("<!--"))
	text, ok := sc.src.readUntil("-->")
	if !ok {
		return &ParseError{Kind: UnterminatedComment, Pos: start}
	}
	if strings.Contains(text, "--") {
		return &ParseError{Kind: MalformedDecl, Pos: start, Message: "comment must not contain \"--\""}
	}
	return sc.call(sc.h.Comment(normalizeNewlines(text)))
}

// --- processing instructions --------------------------------------------

func (sc *Scanner) scanPI() error {
	start := sc.src.pos()
	sc.src.advance(len("<?"))
	target, err := sc.readName()
	if err != nil {
		return &ParseError{Kind: UnterminatedPI, Pos: start}
	}
	if strings.EqualFold(target, "xml") {
		return &ParseError{Kind: MalformedDecl, Pos: start, Message: "xml declaration must be the first construct in the document"}
	}
	sc.skipSpace()
	data, ok := sc.src.readUntil("?>")
	if !ok {
		return &ParseError{Kind: UnterminatedPI, Pos: start}
	}
	return sc.call(sc.h.ProcessingInstruction(target, normalizeNewlines(data)))
}

// --- CDATA ---------------------------------------------------------------

func (sc *Scanner) scanCDATA() error {
	start := sc.src.pos()
	sc.src.advance(len("<![CDATA["))
	text, ok := sc.src.readUntil("]]>")
	if !ok {
		return &ParseError{Kind: UnterminatedCDATA, Pos: start}
	}
	if err := sc.call(sc.h.StartCDATA()); err != nil {
		return err
	}
	if err := sc.call(sc.h.Characters(normalizeNewlines(text))); err != nil {
		return err
	}
	return sc.call(sc.h.EndCDATA())
}

// --- DOCTYPE ---------------------------------------------------------------

func (sc *Scanner) scanDoctype() error {
	start := sc.src.pos()
	sc.src.advance(len("<!DOCTYPE"))
	sc.skipSpace()
	name, err := sc.readName()
	if err != nil {
		return &ParseError{Kind: UnterminatedDOCTYPE, Pos: start}
	}
	sc.skipSpace()

	var pub, sys string
	if sc.src.hasPrefix("PUBLIC") {
		sc.src.advance(len("PUBLIC"))
		sc.skipSpace()
		if pub, err = sc.mustQuoted(start); err != nil {
			return err
		}
		sc.skipSpace()
		if sys, err = sc.mustQuoted(start); err != nil {
			return err
		}
	} else if sc.src.hasPrefix("SYSTEM") {
		sc.src.advance(len("SYSTEM"))
		sc.skipSpace()
		if sys, err = sc.mustQuoted(start); err != nil {
			return err
		}
	}
	sc.skipSpace()

	if err := sc.call(sc.h.StartDTD(name, pub, sys)); err != nil {
		return err
	}

	if sc.src.hasPrefix("[") {
		sc.src.advance(1)
		subset, ok := sc.scanInternalSubset()
		if !ok {
			return &ParseError{Kind: UnterminatedDOCTYPE, Pos: start}
		}
		if err := sc.call(sc.h.InternalSubset(subset)); err != nil {
			return err
		}
		sc.skipSpace()
	}
	if !sc.src.hasPrefix(">") {
		return &ParseError{Kind: UnterminatedDOCTYPE, Pos: start, Message: "expected '>'"}
	}
	sc.src.advance(1)
	return sc.call(sc.h.EndDTD())
}

// scanInternalSubset consumes up to the matching ']', tolerating nested
// '[' ']' pairs inside parameter-entity conditional sections and
// bracketed content, and string literals that may themselves contain
// brackets.
func (sc *Scanner) scanInternalSubset() (string, bool) {
	start := sc.src.off
	depth := 1
	for {
		if sc.src.off >= len(sc.src.buf) {
			if n, _ := sc.src.fill(4096); n == 0 {
				return sc.src.buf[start:sc.src.off], false
			}
			continue
		}
		c := sc.src.buf[sc.src.off]
		switch c {
		case '"', '\'':
			sc.src.advance(1)
			sc.src.readUntil(string(c))
			continue
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				text := sc.src.buf[start:sc.src.off]
				sc.src.advance(1)
				return text, true
			}
		}
		sc.src.advance(1)
	}
}

func (sc *Scanner) mustQuoted(start Pos) (string, error) {
	v, ok := sc.scanQuoted()
	if !ok {
		return "", &ParseError{Kind: UnterminatedDOCTYPE, Pos: start, Message: "expected quoted literal"}
	}
	return v, nil
}

// --- element tags -----------------------------------------------------

func (sc *Scanner) scanStartTag() error {
	start := sc.src.pos()
	if len(sc.stack) == 0 && sc.sawRoot {
		return &ParseError{Kind: MalformedTag, Pos: start, Message: "document has more than one root element"}
	}
	sc.src.advance(1) // '<'
	nameStr, err := sc.readName()
	if err != nil {
		return &ParseError{Kind: MalformedTag, Pos: start}
	}
	name := splitQName(nameStr)

	var attrs []Attr
	seen := make(map[xml.Name]bool)
	for {
		sc.skipSpace()
		if sc.src.hasPrefix("/>") {
			sc.src.advance(2)
			sc.sawRoot = true
			if err := sc.emitStart(name, attrs); err != nil {
				return err
			}
			return sc.emitEnd(name, start)
		}
		if sc.src.hasPrefix(">") {
			sc.src.advance(1)
			sc.stack = append(sc.stack, name)
			sc.sawRoot = true
			return sc.emitStart(name, attrs)
		}
		p, err := sc.src.peek(1)
		if err != nil || p == "" {
			return &ParseError{Kind: MalformedTag, Pos: start, Message: "unterminated start tag"}
		}
		aStart := sc.src.pos()
		attrNameStr, err := sc.readName()
		if err != nil {
			return &ParseError{Kind: MalformedTag, Pos: aStart}
		}
		attrName := splitQName(attrNameStr)
		sc.skipSpace()
		if !sc.src.hasPrefix("=") {
			return &ParseError{Kind: MalformedTag, Pos: aStart, Message: "expected '=' after attribute name"}
		}
		sc.src.advance(1)
		sc.skipSpace()
		raw, ok := sc.scanQuoted()
		if !ok {
			return &ParseError{Kind: MalformedTag, Pos: aStart, Message: "expected quoted attribute value"}
		}
		if seen[attrName] {
			return &ParseError{Kind: DuplicateAttribute, Pos: aStart, Message: attrNameStr}
		}
		seen[attrName] = true
		lexical := normalizeNewlines(raw)
		var skippedNames []string
		value, err := expandText(lexical, func(n string) { skippedNames = append(skippedNames, n) })
		if err != nil {
			return err
		}
		attrs = append(attrs, Attr{Name: attrName, Value: value, Lexical: lexical})
		for _, n := range skippedNames {
			if err := sc.call(sc.h.SkippedEntity(n)); err != nil {
				return err
			}
		}
	}
}

func (sc *Scanner) emitStart(name xml.Name, attrs []Attr) error {
	return sc.call(sc.h.StartElement(name, attrs))
}

func (sc *Scanner) emitEnd(name xml.Name, at Pos) error {
	return sc.call(sc.h.EndElement(name))
}

func (sc *Scanner) scanEndTag() error {
	start := sc.src.pos()
	sc.src.advance(2) // '</'
	nameStr, err := sc.readName()
	if err != nil {
		return &ParseError{Kind: MalformedTag, Pos: start}
	}
	sc.skipSpace()
	if !sc.src.hasPrefix(">") {
		return &ParseError{Kind: MalformedTag, Pos: start, Message: "expected '>'"}
	}
	sc.src.advance(1)
	name := splitQName(nameStr)
	if len(sc.stack) == 0 || sc.stack[len(sc.stack)-1] != name {
		return &ParseError{Kind: UnmatchedEndTag, Pos: start, Message: "</" + nameStr + ">"}
	}
	sc.stack = sc.stack[:len(sc.stack)-1]
	return sc.call(sc.h.EndElement(name))
}

// --- character data -----------------------------------------------------

func (sc *Scanner) scanCharData() error {
	start := sc.src.pos()
	text := sc.src.readWhile(func(c byte) bool { return c != '<' })
	if text == "" {
		// A lone '&' with no following '<' at EOF, or stray content;
		// nothing to do.
		return nil
	}
	if strings.Contains(text, "]]>") && len(sc.stack) > 0 {
		return &ParseError{Kind: IllegalChar, Pos: start, Message: "literal \"]]>\" not allowed in character data"}
	}
	if !qnameValidCharRun(text) {
		return &ParseError{Kind: IllegalChar, Pos: start}
	}
	text = normalizeNewlines(text)
	var skippedNames []string
	expanded, err := expandText(text, func(n string) { skippedNames = append(skippedNames, n) })
	if err != nil {
		return err
	}
	if err := sc.call(sc.h.Characters(expanded)); err != nil {
		return err
	}
	for _, n := range skippedNames {
		if err := sc.call(sc.h.SkippedEntity(n)); err != nil {
			return err
		}
	}
	return nil
}

func qnameValidCharRun(s string) bool {
	for _, r := range s {
		if r == 0xFFFD {
			continue // replacement character from a prior decode step
		}
		if r < 0x20 && r != 0x9 && r != 0xA && r != 0xD {
			return false
		}
	}
	return true
}
