// Package contentdirectory implements the ContentDirectory service
// (component 4.F): Browse/Search SOAP actions over the Library, rendered as
// DIDL-Lite.
package contentdirectory

import (
	"bytes"
	"crypto/rand"
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/anacrolix/log"

	"github.com/zeroexploit/slms/library"
	"github.com/zeroexploit/slms/upnp"
)

// Service implements the ContentDirectory:1 SOAP action set against a
// Library.
type Service struct {
	Library *library.Library
	// Opts is the fallback RenderOptions used when no entry in Renderers
	// matches the requesting Control Point's User-Agent.
	Opts RenderOptions
	// Renderers holds the per-profile RenderOptions keyed by profile name
	// (spec §6); rendererOptions performs the substring match against a
	// request's User-Agent header.
	Renderers map[string]RenderOptions
	// DefaultRenderer names the Renderers entry to prefer when no profile
	// name matches the requesting User-Agent.
	DefaultRenderer string
	Logger          log.Logger

	subMu sync.Mutex
	subs  map[string]struct{}
}

// rendererOptions implements the spec §6 renderer-selection rule: match
// the request's User-Agent against the configured profile names by a
// case-insensitive substring, preferring the longest match and breaking
// ties alphabetically for determinism, falling back to DefaultRenderer
// and then to Opts.
func (s *Service) rendererOptions(r *http.Request) RenderOptions {
	ua := strings.ToLower(r.UserAgent())
	if ua != "" {
		var names []string
		for name := range s.Renderers {
			if name != "" && strings.Contains(ua, strings.ToLower(name)) {
				names = append(names, name)
			}
		}
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		if len(names) > 0 {
			return s.Renderers[names[0]]
		}
	}
	if opt, ok := s.Renderers[s.DefaultRenderer]; ok {
		return opt
	}
	return s.Opts
}

// Handle dispatches one SOAP action by name, returning the ordered set of
// response arguments to render back into the envelope.
func (s *Service) Handle(action string, argsXML []byte, r *http.Request) ([][2]string, error) {
	args := extractArgs(argsXML)

	switch action {
	case "GetSearchCapabilities":
		return [][2]string{{"SearchCaps", "*"}}, nil

	case "GetSortCapabilities":
		return [][2]string{{"SortCaps", "*"}}, nil

	case "GetSystemUpdateID":
		return [][2]string{{"Id", strconv.FormatUint(s.Library.SystemUpdateID(), 10)}}, nil

	case "Browse":
		return s.browse(args, r.Host, s.rendererOptions(r))

	case "Search", "SearchMetadata":
		// Searching-by-criteria is out of scope; return a well-formed empty
		// result set rather than the bare empty body a naive port would.
		return [][2]string{
			{"Result", didlLite("")},
			{"NumberReturned", "0"},
			{"TotalMatches", "0"},
			{"UpdateID", strconv.FormatUint(s.Library.SystemUpdateID(), 10)},
		}, nil

	default:
		return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unrecognized action %q", action)
	}
}

// Subscribe implements the UPnP eventing stub: any subscription is accepted
// and immediately assigned a SID, but no NOTIFYs are ever sent (spec §9
// Non-goals: eventing beyond a bare accept/reject stub).
func (s *Service) Subscribe(callback []*url.URL, timeoutSeconds int) (sid string, actualTimeout int, err error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs == nil {
		s.subs = make(map[string]struct{})
	}
	sid = "uuid:" + newSubscriptionID()
	s.subs[sid] = struct{}{}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 1800
	}
	return sid, timeoutSeconds, nil
}

// Unsubscribe drops a previously issued subscription id.
func (s *Service) Unsubscribe(sid string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[sid]; !ok {
		return upnp.Errorf(upnp.InvalidActionErrorCode, "no such subscription %q", sid)
	}
	delete(s.subs, sid)
	return nil
}

func newSubscriptionID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return upnp.FormatUUID(buf[:])
}

func (s *Service) browse(args map[string]string, host string, opt RenderOptions) ([][2]string, error) {
	objectID, err := strconv.ParseUint(args["ObjectID"], 10, 64)
	if err != nil {
		objectID = 0
	}
	flag := args["BrowseFlag"]
	sortCriteria := args["SortCriteria"]
	startingIndex := parseUint32(args["StartingIndex"])
	requestedCount := parseUint32(args["RequestedCount"])

	switch flag {
	case "BrowseMetadata":
		return s.browseMetadata(objectID, host, opt)
	default:
		return s.browseDirectChildren(objectID, startingIndex, requestedCount, sortCriteria, host, opt)
	}
}

func parseUint32(s string) uint32 {
	v, _ := strconv.ParseUint(s, 10, 32)
	return uint32(v)
}

func (s *Service) browseMetadata(objectID uint64, host string, opt RenderOptions) ([][2]string, error) {
	if f, err := s.Library.GetFolderDirect(objectID); err == nil {
		return [][2]string{
			{"Result", didlLite(RenderFolder(f))},
			{"NumberReturned", "1"},
			{"TotalMatches", "1"},
			{"UpdateID", strconv.FormatUint(s.Library.SystemUpdateID(), 10)},
		}, nil
	}
	it, err := s.Library.GetItemDirect(objectID)
	if err != nil {
		return nil, upnp.Errorf(upnp.NoSuchObjectErrorCode, "no such object %d", objectID)
	}
	return [][2]string{
		{"Result", didlLite(RenderItem(it, opt, host))},
		{"NumberReturned", "1"},
		{"TotalMatches", "1"},
		{"UpdateID", strconv.FormatUint(s.Library.SystemUpdateID(), 10)},
	}, nil
}

func (s *Service) browseDirectChildren(objectID uint64, startingIndex, requestedCount uint32, sortCriteria string, host string, opt RenderOptions) ([][2]string, error) {
	folders, err := s.Library.GetFoldersFromParent(objectID)
	if err != nil {
		return nil, upnp.Errorf(upnp.NoSuchObjectErrorCode, "no such object %d", objectID)
	}
	items, err := s.Library.GetItemsFromParent(objectID)
	if err != nil {
		return nil, upnp.Errorf(upnp.NoSuchObjectErrorCode, "no such object %d", objectID)
	}
	sortFolders(folders, sortCriteria)
	sortItems(items, sortCriteria)

	total := uint32(len(folders) + len(items))
	unlimited := requestedCount == 0

	var buf bytes.Buffer
	var emitted uint32

	if startingIndex < uint32(len(folders)) {
		for i := startingIndex; i < uint32(len(folders)); i++ {
			if !unlimited && emitted >= requestedCount {
				break
			}
			buf.WriteString(RenderFolder(folders[i]))
			emitted++
		}
	}

	// The item cursor only restarts at 0 once a folder was actually
	// emitted on this page; otherwise it carries StartingIndex through
	// unadjusted, even past the end of the item list.
	itemStart := startingIndex
	if emitted > 0 {
		itemStart = 0
	}
	if unlimited || emitted < requestedCount {
		for i := itemStart; i < uint32(len(items)); i++ {
			if !unlimited && emitted >= requestedCount {
				break
			}
			buf.WriteString(RenderItem(items[i], opt, host))
			emitted++
		}
	}

	updateID := uint32(1)
	if emitted > 0 {
		updateID = 2
	}

	return [][2]string{
		{"Result", didlLite(buf.String())},
		{"NumberReturned", strconv.FormatUint(uint64(emitted), 10)},
		{"TotalMatches", strconv.FormatUint(uint64(total), 10)},
		{"UpdateID", strconv.FormatUint(uint64(updateID), 10)},
	}, nil
}

// extractArgs pulls the one-level-deep argument elements out of a SOAP
// action body (the raw innerxml of <s:Body>, i.e. the <u:ActionName>
// element and its argument children) without needing to know the action's
// exact type ahead of time.
func extractArgs(raw []byte) map[string]string {
	args := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	var current string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				current = t.Name.Local
			}
		case xml.CharData:
			if depth == 2 && current != "" {
				args[current] += string(t)
			}
		case xml.EndElement:
			depth--
		}
	}
	return args
}
