package contentdirectory

import (
	"sort"
	"strings"

	"github.com/zeroexploit/slms/library"
)

// criterion is one parsed element of a SortCriteria string: a field name
// and its direction.
type criterion struct {
	field      string
	descending bool
}

// parseSortCriteria parses the comma-separated "+field,-field,..." form
// from spec §4.F.
func parseSortCriteria(s string) []criterion {
	var out []criterion
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c := criterion{}
		switch part[0] {
		case '-':
			c.descending = true
			c.field = part[1:]
		case '+':
			c.field = part[1:]
		default:
			c.field = part
		}
		out = append(out, c)
	}
	return out
}

func folderFieldValue(f library.Folder, field string) string {
	switch field {
	case "dc:title":
		return f.Title
	default:
		return f.Title
	}
}

func itemFieldValue(it library.Item, field string) string {
	switch field {
	case "dc:title":
		if it.Meta.Title != "" {
			return it.Meta.Title
		}
		return it.Meta.FileName
	case "dc:date":
		return it.Meta.Date
	case "upnp:genre":
		return it.Meta.Genre
	case "dc:description":
		return it.Meta.DescriptionShort
	case "upnp:longDescription":
		return it.Meta.DescriptionLong
	case "upnp:producer":
		return it.Meta.Producer
	case "upnp:rating":
		return it.Meta.Rating
	case "upnp:actor":
		return it.Meta.Actor
	case "upnp:director":
		return it.Meta.Director
	case "dc:publisher":
		return it.Meta.Publisher
	case "upnp:album":
		return it.Meta.Album
	case "upnp:originalTrackNumber":
		return it.Meta.TrackNumber
	case "upnp:playlist":
		return it.Meta.Playlist
	case "dc:contributor":
		return it.Meta.Contributor
	case "dc:language":
		if len(it.Meta.Languages) > 0 {
			return it.Meta.Languages[0]
		}
		return ""
	case "upnp:artist":
		if len(it.Meta.Artists) > 0 {
			return it.Meta.Artists[0]
		}
		return ""
	case "dc:rights":
		if len(it.Meta.Copyrights) > 0 {
			return it.Meta.Copyrights[0]
		}
		return ""
	default:
		return ""
	}
}

// sortFolders sorts in place by SortCriteria, falling back to title
// (ties and unknown/empty criteria both fall back to the name field).
func sortFolders(folders []library.Folder, sortCriteria string) {
	criteria := parseSortCriteria(sortCriteria)
	sort.SliceStable(folders, func(i, j int) bool {
		for _, c := range criteria {
			vi, vj := folderFieldValue(folders[i], c.field), folderFieldValue(folders[j], c.field)
			if vi == vj {
				continue
			}
			if c.descending {
				return vi > vj
			}
			return vi < vj
		}
		return folders[i].Title < folders[j].Title
	})
}

// sortItems sorts in place by SortCriteria, falling back to file_name.
func sortItems(items []library.Item, sortCriteria string) {
	criteria := parseSortCriteria(sortCriteria)
	sort.SliceStable(items, func(i, j int) bool {
		for _, c := range criteria {
			vi, vj := itemFieldValue(items[i], c.field), itemFieldValue(items[j], c.field)
			if vi == "" {
				vi = items[i].Meta.FileName
			}
			if vj == "" {
				vj = items[j].Meta.FileName
			}
			if vi == vj {
				continue
			}
			if c.descending {
				return vi > vj
			}
			return vi < vj
		}
		return items[i].Meta.FileName < items[j].Meta.FileName
	})
}
