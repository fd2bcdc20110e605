// Package reader implements the byte-level input stage of the parser: a
// BOM probe that selects a decoder, feeding a lazy, finite,
// non-restartable character sequence to the scanner.
package reader

import (
	"bufio"
	"errors"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding identifies the byte encoding selected for a stream by its
// leading byte-order mark.
type Encoding int

const (
	// UTF8 is assumed whenever no recognized BOM is present.
	UTF8 Encoding = iota
	UTF16LE
	UTF16BE
)

func (e Encoding) String() string {
	switch e {
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	default:
		return "UTF-8"
	}
}

// EncodingError reports a failure to decode the byte stream under its
// selected encoding, or an I/O failure while reading it.
type EncodingError struct {
	Path     string
	Position int64
	Cause    error
}

func (e *EncodingError) Error() string {
	if e.Path != "" {
		return "reader: " + e.Path + ": at byte " + itoa(e.Position) + ": " + e.Cause.Error()
	}
	return "reader: at byte " + itoa(e.Position) + ": " + e.Cause.Error()
}

func (e *EncodingError) Unwrap() error { return e.Cause }

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// A Handle is a lazy, finite, non-restartable sequence of decoded UTF-8
// characters read from an underlying byte stream. It is the only
// component permitted to touch the stream directly; the scanner reads
// exclusively through Handle.Read.
type Handle struct {
	path     string
	br       *bufio.Reader
	dec      io.Reader
	enc      Encoding
	pos      int64
	done     bool
	lastErr  error
}

// Open probes path's leading bytes for a byte-order mark, selects the
// implied encoding, discards the BOM, and returns a Handle ready to
// stream decoded characters. Absent a recognized BOM, UTF-8 is assumed
// and no bytes are discarded.
func Open(path string, src io.Reader) (*Handle, error) {
	br := bufio.NewReader(src)
	enc, n, err := probeBOM(br)
	if err != nil {
		return nil, &EncodingError{Path: path, Position: 0, Cause: err}
	}
	h := &Handle{path: path, br: br, enc: enc, pos: int64(n)}
	h.dec = decoderFor(enc, br)
	return h, nil
}

// OpenLax behaves like Open, except that when the BOM probe finds no
// recognized mark it runs the stream through golang.org/x/net/html/charset's
// best-effort content sniff instead of assuming UTF-8 outright. The BOM
// probe remains the normative path; this is a secondary, non-fatal
// guess for byte streams that declare or imply a different encoding
// without a leading mark.
func OpenLax(path string, src io.Reader) (*Handle, error) {
	br := bufio.NewReader(src)
	enc, n, err := probeBOM(br)
	if err != nil {
		return nil, &EncodingError{Path: path, Position: 0, Cause: err}
	}
	h := &Handle{path: path, br: br, enc: enc, pos: int64(n)}
	if enc == UTF8 && n == 0 {
		if sniffed, cerr := charset.NewReader(br, ""); cerr == nil {
			h.dec = sniffed
			return h, nil
		}
	}
	h.dec = decoderFor(enc, br)
	return h, nil
}

func probeBOM(br *bufio.Reader) (Encoding, int, error) {
	lead, err := br.Peek(3)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return UTF8, 0, err
	}
	switch {
	case len(lead) >= 3 && lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF:
		br.Discard(3)
		return UTF8, 3, nil
	case len(lead) >= 2 && lead[0] == 0xFF && lead[1] == 0xFE:
		br.Discard(2)
		return UTF16LE, 2, nil
	case len(lead) >= 2 && lead[0] == 0xFE && lead[1] == 0xFF:
		br.Discard(2)
		return UTF16BE, 2, nil
	default:
		return UTF8, 0, nil
	}
}

func decoderFor(enc Encoding, br *bufio.Reader) io.Reader {
	switch enc {
	case UTF16LE:
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder())
	case UTF16BE:
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder())
	default:
		return br
	}
}

// Encoding reports the encoding selected for this stream by the BOM
// probe (or the UTF-8 default).
func (h *Handle) Encoding() Encoding { return h.enc }

// Position reports the length of the discarded BOM plus the number of
// decoded bytes Read has returned so far. For UTF-8 input this equals the
// number of bytes consumed from the underlying stream; for UTF-16 input
// it does not.
func (h *Handle) Position() int64 { return h.pos }

// DataAvailable reports whether a subsequent call to Read can be
// expected to return more data. It peeks one byte of the buffered
// stream, which reads from the underlying source when the buffer is
// empty.
func (h *Handle) DataAvailable() bool {
	if h.done {
		return false
	}
	_, err := h.br.Peek(1)
	return err == nil
}

// Read yields the next chunk of decoded characters as a string. It
// returns io.EOF once the stream is exhausted; any decode or I/O
// failure is reported as an *EncodingError and the Handle is
// thereafter exhausted (it is non-restartable).
func (h *Handle) Read(buf []byte) (string, error) {
	if h.done {
		return "", io.EOF
	}
	n, err := h.dec.Read(buf)
	h.pos += int64(n)
	if n > 0 {
		if err != nil && err != io.EOF {
			// Surface the partial read; report the error on the
			// next call so no decoded bytes are lost.
			h.lastErr = err
			return string(buf[:n]), nil
		}
		if err == io.EOF {
			h.done = true
		}
		return string(buf[:n]), nil
	}
	if err == io.EOF || (h.lastErr != nil && errors.Is(h.lastErr, io.EOF)) {
		h.done = true
		return "", io.EOF
	}
	h.done = true
	cause := err
	if cause == nil {
		cause = h.lastErr
	}
	return "", &EncodingError{Path: h.path, Position: h.pos, Cause: cause}
}
