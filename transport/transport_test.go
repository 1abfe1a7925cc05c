package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	return path
}

func TestParseRangeForms(t *testing.T) {
	const fileSize = 100
	cases := []struct {
		name      string
		value     string
		wantStart uint64
		wantEnd   uint64
		wantOK    bool
	}{
		{"start-end", "bytes=10-19", 10, 20, true},
		{"start-", "bytes=10-", 10, fileSize, true},
		{"suffix", "bytes=-10", 90, fileSize, true},
		{"suffix-overflow", "bytes=-1000", 0, fileSize, true},
		{"bare-start", "bytes=50", 50, fileSize, true},
		{"case-insensitive-prefix", "Bytes=5-9", 5, 10, true},
		{"malformed-no-prefix", "10-20", 0, 0, false},
		{"malformed-nonnumeric", "bytes=a-b", 0, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, ok := parseRange(c.value, fileSize)
			if ok != c.wantOK {
				t.Fatalf("parseRange(%q) ok = %v, want %v", c.value, ok, c.wantOK)
			}
			if !ok {
				return
			}
			if r.Start != c.wantStart || r.End != c.wantEnd {
				t.Fatalf("parseRange(%q) = {%d,%d}, want {%d,%d}", c.value, r.Start, r.End, c.wantStart, c.wantEnd)
			}
		})
	}
}

// Scenario S3 / spec §8 properties 7-9: a satisfiable range request gets
// 206 with the correct slice; no Range header gets 200 with the full
// body; an out-of-bounds range gets 416.
func TestSendFileFullBody(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	SendFile(w, r, path, "application/octet-stream")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "0123456789" {
		t.Fatalf("body = %q, want full content", w.Body.String())
	}
}

func TestSendFilePartialRange(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	r.Header.Set("Range", "bytes=2-5")
	SendFile(w, r, path, "application/octet-stream")
	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if w.Body.String() != "2345" {
		t.Fatalf("body = %q, want \"2345\"", w.Body.String())
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 2-5/10" {
		t.Fatalf("Content-Range = %q, want bytes 2-5/10", cr)
	}
}

func TestSendFileRangeBeyondEOF(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	r.Header.Set("Range", "bytes=5-100")
	SendFile(w, r, path, "application/octet-stream")
	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
}

func TestSendFileMissing(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	SendFile(w, r, "/no/such/path/at/all", "application/octet-stream")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSendFileHeadSkipsBody(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodHead, "/stream/1", nil)
	SendFile(w, r, path, "application/octet-stream")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body len = %d, want 0 for HEAD", w.Body.Len())
	}
}

func TestCopyFileStopsAtEnd(t *testing.T) {
	path := writeTempFile(t, "abcdefghij")
	var buf strings.Builder
	copyFile(&buf, path, 2, 5)
	if buf.String() != "cde" {
		t.Fatalf("copyFile wrote %q, want \"cde\"", buf.String())
	}
}

var _ io.Writer = (*strings.Builder)(nil)
