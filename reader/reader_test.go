package reader_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/xmlkit-go/xmlkit/reader"
)

// readAll drains a Handle the way the scanner's source does: repeated
// Read calls until io.EOF.
func readAll(t *testing.T, h *reader.Handle) string {
	t.Helper()
	var b strings.Builder
	buf := make([]byte, 8)
	for {
		chunk, err := h.Read(buf)
		b.WriteString(chunk)
		if err == io.EOF {
			return b.String()
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
}

func TestOpenBOMProbe(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		enc  reader.Encoding
		want string
	}{
		{
			name: "UTF-8 BOM discarded",
			in:   append([]byte{0xEF, 0xBB, 0xBF}, []byte("<r/>")...),
			enc:  reader.UTF8,
			want: "<r/>",
		},
		{
			name: "no BOM assumes UTF-8 and discards nothing",
			in:   []byte("<r/>"),
			enc:  reader.UTF8,
			want: "<r/>",
		},
		{
			name: "UTF-16LE BOM selects the little-endian decoder",
			in:   []byte{0xFF, 0xFE, '<', 0, 'r', 0, '/', 0, '>', 0},
			enc:  reader.UTF16LE,
			want: "<r/>",
		},
		{
			name: "UTF-16BE BOM selects the big-endian decoder",
			in:   []byte{0xFE, 0xFF, 0, '<', 0, 'r', 0, '/', 0, '>'},
			enc:  reader.UTF16BE,
			want: "<r/>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := reader.Open("test.xml", bytes.NewReader(tt.in))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if h.Encoding() != tt.enc {
				t.Errorf("Encoding: have %v want %v", h.Encoding(), tt.enc)
			}
			if got := readAll(t, h); got != tt.want {
				t.Errorf("content: have %q want %q", got, tt.want)
			}
		})
	}
}

func TestHandleIsNotRestartable(t *testing.T) {
	h, err := reader.Open("test.xml", strings.NewReader("<r/>"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !h.DataAvailable() {
		t.Fatalf("expected data before the first read")
	}
	_ = readAll(t, h)
	if h.DataAvailable() {
		t.Errorf("expected no data after exhaustion")
	}
	if _, err := h.Read(make([]byte, 4)); err != io.EOF {
		t.Errorf("expected io.EOF on reads past exhaustion, got %v", err)
	}
}

func TestShortInputWithoutBOM(t *testing.T) {
	// Shorter than the three-byte probe window.
	h, err := reader.Open("test.xml", strings.NewReader("<"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if h.Encoding() != reader.UTF8 {
		t.Errorf("have %v want UTF-8 for a short, BOM-less stream", h.Encoding())
	}
	if got := readAll(t, h); got != "<" {
		t.Errorf("content: have %q want %q", got, "<")
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestOpenReportsProbeFailure(t *testing.T) {
	cause := errors.New("disk gone")
	_, err := reader.Open("test.xml", failingReader{err: cause})
	var ee *reader.EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EncodingError, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the probe failure to wrap its cause, got %v", err)
	}
}

func TestReadFailureIsEncodingError(t *testing.T) {
	cause := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("<r>partial"), failingReader{err: cause})
	h, err := reader.Open("test.xml", src)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var sawErr error
	buf := make([]byte, 64)
	for {
		_, err := h.Read(buf)
		if err != nil {
			sawErr = err
			break
		}
	}
	var ee *reader.EncodingError
	if !errors.As(sawErr, &ee) {
		t.Fatalf("expected *EncodingError once the stream fails, got %T: %v", sawErr, sawErr)
	}
}
