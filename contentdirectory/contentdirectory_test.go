package contentdirectory

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/anacrolix/log"

	"github.com/zeroexploit/slms/library"
)

// fakeProber mimics ffprobe: every file becomes an audio item named after
// its base filename, so tests don't depend on a real media file or binary.
type fakeProber struct{}

func (fakeProber) Probe(path string) (library.Item, error) {
	return library.Item{
		FilePath:  path,
		MediaType: library.Audio,
		Tracks:    []library.Stream{{Kind: library.StreamAudio, IsDefault: true}},
		Meta:      library.MetaData{FileName: filepath.Base(path), FileExtension: "mp3"},
	}, nil
}

func newTestLibrary(t *testing.T, itemCount, folderCount int) *library.Library {
	t.Helper()
	share := t.TempDir()
	for i := 0; i < folderCount; i++ {
		name := filepath.Join(share, "folder"+strconv.Itoa(i))
		if err := os.Mkdir(name, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < itemCount; i++ {
		name := filepath.Join(share, "track"+strconv.Itoa(i)+".mp3")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lib := library.New(filepath.Join(t.TempDir(), "index.xml"), []string{share}, fakeProber{}, library.DefaultContainers(), log.Logger{})
	if err := lib.BootUp(); err != nil {
		t.Fatalf("BootUp: %s", err)
	}
	folders, err := lib.GetFoldersFromParent(0)
	if err != nil || len(folders) != 1 {
		t.Fatalf("expected exactly one share folder under root, got %+v, err %v", folders, err)
	}
	return lib
}

func shareFolderID(t *testing.T, lib *library.Library) uint64 {
	t.Helper()
	folders, err := lib.GetFoldersFromParent(0)
	if err != nil || len(folders) != 1 {
		t.Fatalf("expected exactly one share folder, got %+v, err %v", folders, err)
	}
	return folders[0].ID
}

func argXML(pairs ...[2]string) []byte {
	var b []byte
	b = append(b, []byte(`<u:Browse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">`)...)
	for _, p := range pairs {
		b = append(b, []byte("<"+p[0]+">"+p[1]+"</"+p[0]+">")...)
	}
	b = append(b, []byte(`</u:Browse>`)...)
	return b
}

func TestExtractArgsOneLevelDeep(t *testing.T) {
	got := extractArgs(argXML([2]string{"ObjectID", "0"}, [2]string{"BrowseFlag", "BrowseDirectChildren"}))
	if got["ObjectID"] != "0" || got["BrowseFlag"] != "BrowseDirectChildren" {
		t.Fatalf("extractArgs = %+v", got)
	}
}

func findArg(args [][2]string, key string) string {
	for _, p := range args {
		if p[0] == key {
			return p[1]
		}
	}
	return ""
}

// Scenario S2 / spec §8: a root browse with no pagination limit returns
// every folder and item, folders first.
func TestBrowseDirectChildrenReturnsAllUnlimited(t *testing.T) {
	lib := newTestLibrary(t, 3, 2)
	svc := &Service{Library: lib}
	id := shareFolderID(t, lib)

	req := httpRequestWithHost("server:1900")
	resp, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", strconv.FormatUint(id, 10)},
		[2]string{"BrowseFlag", "BrowseDirectChildren"},
		[2]string{"StartingIndex", "0"},
		[2]string{"RequestedCount", "0"},
	), req)
	if err != nil {
		t.Fatalf("Handle(Browse): %s", err)
	}
	if findArg(resp, "NumberReturned") != "5" {
		t.Fatalf("NumberReturned = %q, want 5", findArg(resp, "NumberReturned"))
	}
	if findArg(resp, "TotalMatches") != "5" {
		t.Fatalf("TotalMatches = %q, want 5", findArg(resp, "TotalMatches"))
	}
}

// Pagination/folders-first quirk: the item cursor resets to 0 only once a
// folder was actually emitted on this page; otherwise StartingIndex carries
// through to the item list unadjusted, even past every folder.
func TestBrowseDirectChildrenPaginationFoldersFirst(t *testing.T) {
	lib := newTestLibrary(t, 2, 2)
	svc := &Service{Library: lib}
	id := shareFolderID(t, lib)
	req := httpRequestWithHost("server:1900")

	// First page: only the first folder (RequestedCount=1 starting at 0).
	// A folder was emitted, so a subsequent page's item cursor would
	// reset to 0.
	resp, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", strconv.FormatUint(id, 10)},
		[2]string{"BrowseFlag", "BrowseDirectChildren"},
		[2]string{"StartingIndex", "0"},
		[2]string{"RequestedCount", "1"},
	), req)
	if err != nil {
		t.Fatalf("Handle(Browse) page1: %s", err)
	}
	if findArg(resp, "NumberReturned") != "1" {
		t.Fatalf("page1 NumberReturned = %q, want 1", findArg(resp, "NumberReturned"))
	}
	if findArg(resp, "UpdateID") != "2" {
		t.Fatalf("page1 UpdateID = %q, want 2 once something was emitted", findArg(resp, "UpdateID"))
	}

	// A page starting exactly at StartingIndex=2 with 2 folders and 2
	// items never emits a folder (the folder loop's range is empty), so
	// the item cursor carries the raw StartingIndex=2 through unadjusted
	// — already past the end of the 2-item list, so nothing is emitted.
	resp2, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", strconv.FormatUint(id, 10)},
		[2]string{"BrowseFlag", "BrowseDirectChildren"},
		[2]string{"StartingIndex", "2"},
		[2]string{"RequestedCount", "0"},
	), req)
	if err != nil {
		t.Fatalf("Handle(Browse) page2: %s", err)
	}
	if findArg(resp2, "NumberReturned") != "0" {
		t.Fatalf("page2 NumberReturned = %q, want 0 (StartingIndex already past every item)", findArg(resp2, "NumberReturned"))
	}
}

// When StartingIndex lands past every folder but still inside the item
// range, the raw (unadjusted) StartingIndex is used directly as the item
// cursor rather than being offset by the folder count.
func TestBrowseDirectChildrenRawStartingIndexIntoItems(t *testing.T) {
	lib := newTestLibrary(t, 3, 2)
	svc := &Service{Library: lib}
	id := shareFolderID(t, lib)
	req := httpRequestWithHost("server:1900")

	resp, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", strconv.FormatUint(id, 10)},
		[2]string{"BrowseFlag", "BrowseDirectChildren"},
		[2]string{"StartingIndex", "2"},
		[2]string{"RequestedCount", "0"},
	), req)
	if err != nil {
		t.Fatalf("Handle(Browse): %s", err)
	}
	// 2 folders, so the folder loop never runs (StartingIndex=2 is not <
	// 2). The item cursor is the raw StartingIndex=2, which skips the
	// first 2 of the 3 items and returns only the last one.
	if findArg(resp, "NumberReturned") != "1" {
		t.Fatalf("NumberReturned = %q, want 1 (only the last item, raw index 2 into a 3-item list)", findArg(resp, "NumberReturned"))
	}
}

func TestBrowseDirectChildrenEmptyFolderUpdateIDOne(t *testing.T) {
	lib := newTestLibrary(t, 0, 0)
	svc := &Service{Library: lib}
	id := shareFolderID(t, lib)
	resp, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", strconv.FormatUint(id, 10)},
		[2]string{"BrowseFlag", "BrowseDirectChildren"},
	), httpRequestWithHost("server:1900"))
	if err != nil {
		t.Fatalf("Handle(Browse): %s", err)
	}
	if findArg(resp, "NumberReturned") != "0" {
		t.Fatalf("NumberReturned = %q, want 0", findArg(resp, "NumberReturned"))
	}
	if findArg(resp, "UpdateID") != "1" {
		t.Fatalf("UpdateID = %q, want 1 when nothing was emitted", findArg(resp, "UpdateID"))
	}
}

func TestBrowseMetadataNoSuchObject(t *testing.T) {
	lib := newTestLibrary(t, 0, 0)
	svc := &Service{Library: lib}
	_, err := svc.Handle("Browse", argXML(
		[2]string{"ObjectID", "999999"},
		[2]string{"BrowseFlag", "BrowseMetadata"},
	), httpRequestWithHost("server:1900"))
	if err == nil {
		t.Fatal("expected an error for a nonexistent ObjectID")
	}
}

// Search/SearchMetadata must return a well-formed, parseable empty
// DIDL-Lite envelope, not a bare empty string.
func TestSearchReturnsWellFormedEmptyEnvelope(t *testing.T) {
	lib := newTestLibrary(t, 0, 0)
	svc := &Service{Library: lib}
	resp, err := svc.Handle("Search", argXML([2]string{"SearchCriteria", "*"}), httpRequestWithHost("server:1900"))
	if err != nil {
		t.Fatalf("Handle(Search): %s", err)
	}
	result := findArg(resp, "Result")
	if result == "" {
		t.Fatal("Result must not be empty")
	}
	if findArg(resp, "NumberReturned") != "0" || findArg(resp, "TotalMatches") != "0" {
		t.Fatalf("Search should report zero matches, got %+v", resp)
	}
}

func TestGetSearchAndSortCapabilities(t *testing.T) {
	svc := &Service{Library: newTestLibrary(t, 0, 0)}
	resp, err := svc.Handle("GetSearchCapabilities", nil, httpRequestWithHost("server:1900"))
	if err != nil || findArg(resp, "SearchCaps") != "*" {
		t.Fatalf("GetSearchCapabilities = %+v, err %v", resp, err)
	}
	resp, err = svc.Handle("GetSortCapabilities", nil, httpRequestWithHost("server:1900"))
	if err != nil || findArg(resp, "SortCaps") != "*" {
		t.Fatalf("GetSortCapabilities = %+v, err %v", resp, err)
	}
}

func TestUnrecognizedActionErrors(t *testing.T) {
	svc := &Service{Library: newTestLibrary(t, 0, 0)}
	if _, err := svc.Handle("NoSuchAction", nil, httpRequestWithHost("server:1900")); err == nil {
		t.Fatal("expected an error for an unrecognized action")
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	svc := &Service{}
	sid, timeout, err := svc.Subscribe(nil, 0)
	if err != nil {
		t.Fatalf("Subscribe: %s", err)
	}
	if sid == "" || timeout != 1800 {
		t.Fatalf("Subscribe = sid %q timeout %d, want nonempty sid and default 1800", sid, timeout)
	}
	if err := svc.Unsubscribe(sid); err != nil {
		t.Fatalf("Unsubscribe: %s", err)
	}
	if err := svc.Unsubscribe(sid); err == nil {
		t.Fatal("expected an error unsubscribing an already-removed sid")
	}
}

func httpRequestWithHost(host string) *http.Request {
	r, _ := http.NewRequest(http.MethodPost, "http://"+host+"/content/control", nil)
	r.Host = host
	return r
}

func httpRequestWithUserAgent(host, userAgent string) *http.Request {
	r := httpRequestWithHost(host)
	r.Header.Set("User-Agent", userAgent)
	return r
}

// rendererOptions prefers the longest profile-name substring match against
// the request's User-Agent, case-insensitively, over a shorter match or the
// configured default.
func TestRendererOptionsPrefersLongestCaseInsensitiveMatch(t *testing.T) {
	svc := &Service{
		Renderers: map[string]RenderOptions{
			"bravia":    {TitleInsteadOfName: true},
			"bravia-4k": {HideFileExtension: true},
		},
		DefaultRenderer: "bravia",
	}
	req := httpRequestWithUserAgent("server:1900", "SonyBRAVIA-4K/1.0 UPnP/1.0")
	got := svc.rendererOptions(req)
	if got != (RenderOptions{HideFileExtension: true}) {
		t.Fatalf("rendererOptions = %+v, want the longer bravia-4k match", got)
	}
}

func TestRendererOptionsFallsBackToDefaultThenZeroValue(t *testing.T) {
	svc := &Service{
		Renderers: map[string]RenderOptions{
			"samsung": {TitleInsteadOfName: true},
		},
		DefaultRenderer: "samsung",
	}
	got := svc.rendererOptions(httpRequestWithUserAgent("server:1900", "SomeUnknownClient/1.0"))
	if got != (RenderOptions{TitleInsteadOfName: true}) {
		t.Fatalf("rendererOptions = %+v, want the DefaultRenderer fallback", got)
	}

	empty := &Service{}
	if got := empty.rendererOptions(httpRequestWithHost("server:1900")); got != (RenderOptions{}) {
		t.Fatalf("rendererOptions = %+v, want the zero value when nothing is configured", got)
	}
}
