// Package transport implements HTTPTransport (component 4.D): the HTTP
// response conventions shared by every endpoint (header generation) and
// byte-range file streaming for /stream/{id} and the static icon.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeroexploit/slms/dlna"
)

// ServerTag is embedded in every response's Server header and in
// writeHeader's Server field, per spec §6: "{OS}/{release},
// SLMS/{version}, UPnP/1.0, DLNADOC/1.50". The OS and release parts are
// the fixed strings runtimeOS and runtimeRelease return ("Linux", "3.4"),
// not values read from the host.
var ServerTag = fmt.Sprintf("%s/%s, SLMS/1, UPnP/1.0, DLNADOC/1.50", runtimeOS(), runtimeRelease())

// ServerUUID is set once at startup by the owning dms.Server and echoed in
// the SID header writeHeader emits.
var ServerUUID string

func runtimeOS() string      { return "Linux" }
func runtimeRelease() string { return "3.4" }

// writeHeader emits the generic response header fields shared by every
// non-streaming response: Date, Expires (Date+180s), Cache-Control,
// SID, Server, Content-Length, Connection.
func writeHeader(w http.ResponseWriter, size int64, mime string, keepAlive bool) {
	now := time.Now().UTC()
	h := w.Header()
	h.Set("Content-Type", mime)
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	if keepAlive {
		h.Set("Connection", "Keep-Alive")
	} else {
		h.Set("Connection", "Close")
	}
	h.Set("SID", "uuid:"+ServerUUID)
	h.Set("Cache-Control", "no-cache")
	h.Set("Date", now.Format(http.TimeFormat))
	h.Set("Expires", now.Add(180*time.Second).Format(http.TimeFormat))
	h.Set("Server", ServerTag)
}

// SendError writes a header-only error response of the given status.
func SendError(w http.ResponseWriter, status int) {
	writeHeader(w, 0, "text/html", false)
	w.WriteHeader(status)
}

// byteRange is a parsed, validated [Start, End) request.
type byteRange struct {
	Start, End uint64 // half-open: [Start, End)
}

// parseRange parses one Range: bytes=... header value into the four forms
// spec §4.D names: "start-end", "start-", "-suffix_len", and a bare
// "start". The returned range's End is exclusive, translated from the
// inclusive wire form. ok is false for a malformed header.
func parseRange(value string, fileSize uint64) (r byteRange, ok bool) {
	const prefix = "bytes="
	lower := strings.ToLower(value)
	idx := strings.Index(lower, prefix)
	if idx < 0 {
		return byteRange{}, false
	}
	spec := value[idx+len(prefix):]
	if end := strings.IndexAny(spec, ",\r\n"); end >= 0 {
		spec = spec[:end]
	}
	spec = strings.TrimSpace(spec)

	dash := strings.Index(spec, "-")
	if dash < 0 {
		// Bare "start": to end of file.
		start, err := strconv.ParseUint(spec, 10, 64)
		if err != nil {
			return byteRange{}, false
		}
		return byteRange{Start: start, End: fileSize}, true
	}
	if dash == 0 {
		// "-suffix_len": last N bytes.
		n, err := strconv.ParseUint(spec[1:], 10, 64)
		if err != nil {
			return byteRange{}, false
		}
		if n > fileSize {
			n = fileSize
		}
		return byteRange{Start: fileSize - n, End: fileSize}, true
	}
	if dash == len(spec)-1 {
		// "start-": to end of file.
		start, err := strconv.ParseUint(spec[:dash], 10, 64)
		if err != nil {
			return byteRange{}, false
		}
		return byteRange{Start: start, End: fileSize}, true
	}
	// "start-end": inclusive end on the wire, exclusive internally.
	start, err := strconv.ParseUint(spec[:dash], 10, 64)
	if err != nil {
		return byteRange{}, false
	}
	endInclusive, err := strconv.ParseUint(spec[dash+1:], 10, 64)
	if err != nil {
		return byteRange{}, false
	}
	return byteRange{Start: start, End: endInclusive + 1}, true
}

// SendFile implements send_file from spec §4.D: stat, optionally parse a
// byte range, write the matching header, then copy the body. Streaming
// happens without the caller holding any lock (the caller is expected to
// have already snapshotted path/mime out of the Library).
func SendFile(w http.ResponseWriter, r *http.Request, path, mime string) {
	fi, err := os.Stat(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			SendError(w, http.StatusNotFound)
		case os.IsPermission(err):
			SendError(w, http.StatusForbidden)
		default:
			SendError(w, http.StatusInternalServerError)
		}
		return
	}
	fileSize := uint64(fi.Size())

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		serveFull(w, r, path, mime, fileSize)
		return
	}

	rng, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		SendError(w, http.StatusBadRequest)
		return
	}
	if rng.Start > rng.End || rng.End > fileSize {
		SendError(w, http.StatusRequestedRangeNotSatisfiable)
		return
	}
	servePartial(w, r, path, mime, rng, fileSize)
}

func dlnaHeaders(h http.Header) {
	h.Set("Accept-Ranges", "bytes")
	h.Set(dlna.ContentFeaturesDomain, dlna.ContentFeatures{SupportRange: true}.String())
	h.Set(dlna.TransferModeDomain, "Streaming")
}

func serveFull(w http.ResponseWriter, r *http.Request, path, mime string, fileSize uint64) {
	h := w.Header()
	h.Set("Content-Type", mime)
	h.Set("Content-Length", strconv.FormatUint(fileSize, 10))
	h.Set("Connection", "Close")
	h.Set("Server", ServerTag)
	dlnaHeaders(h)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	copyFile(w, path, 0, fileSize)
}

func servePartial(w http.ResponseWriter, r *http.Request, path, mime string, rng byteRange, fileSize uint64) {
	h := w.Header()
	h.Set("Content-Type", mime)
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End-1, fileSize))
	h.Set("Content-Length", strconv.FormatUint(rng.End-rng.Start, 10))
	h.Set("Connection", "Close")
	h.Set("Server", ServerTag)
	dlnaHeaders(h)
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	copyFile(w, path, rng.Start, rng.End)
}

// copyFile seeks to start and copies bytes up to end (exclusive) in a
// fixed-size buffer, silently stopping on a write error (client went
// away) or EOF, matching send_file's transfer loop.
func copyFile(w io.Writer, path string, start, end uint64) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
		return
	}
	_, err = io.CopyN(w, f, int64(end-start))
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}
}
