package library

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anacrolix/generics"
	"github.com/anacrolix/log"
)

// The on-disk index is a minimal XML document: a <root> element with
// <folder>/<item> children and trailing <format> entries. Every attribute
// is decoded as a string first and converted by hand, so a single bad
// numeric attribute drops only the entry it belongs to (component 4.A:
// "malformed input yields a best-effort tree").

type xmlMeta struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlStream struct {
	Index      string `xml:"index,attr"`
	Type       string `xml:"type,attr"`
	CodecName  string `xml:"codecName,attr"`
	Bitrate    string `xml:"bitrate,attr"`
	Channels   string `xml:"nrAudioChannels,attr"`
	SampleFreq string `xml:"sampleFrequenzy,attr"`
	Width      string `xml:"width,attr"`
	Height     string `xml:"height,attr"`
	BitDepth   string `xml:"bitDepth,attr"`
	Language   string `xml:"language,attr"`
	IsDefault  string `xml:"isDefault,attr"`
	IsForced   string `xml:"isForced,attr"`
}

type xmlThumbnail struct {
	Path     string `xml:"path,attr"`
	FileSize string `xml:"fileSize,attr"`
	MimeType string `xml:"mimeType,attr"`
	Width    string `xml:"width,attr"`
	Height   string `xml:"height,attr"`
}

type xmlFolder struct {
	ID           string `xml:"id,attr"`
	ParentID     string `xml:"parentId,attr"`
	Title        string `xml:"title,attr"`
	Path         string `xml:"path,attr"`
	Count        string `xml:"count,attr"`
	LastModified string `xml:"lastModified,attr"`
}

type xmlItem struct {
	ID           string         `xml:"id,attr"`
	ParentID     string         `xml:"parentId,attr"`
	LastModified string         `xml:"lastModified,attr"`
	Path         string         `xml:"path,attr"`
	Type         string         `xml:"type,attr"`
	Duration     string         `xml:"duration,attr"`
	Size         string         `xml:"size,attr"`
	ContainerID  string         `xml:"containerId,attr"`
	Streams      []xmlStream    `xml:"stream"`
	Thumbnail    *xmlThumbnail  `xml:"thumbnail"`
	Metas        []xmlMeta      `xml:"meta"`
}

type xmlFormat struct {
	ID         string `xml:"id,attr"`
	Name       string `xml:"name,attr"`
	Extensions string `xml:"extensions,attr"`
	MimeTypes  string `xml:"mimeTypes,attr"`
}

type xmlRoot struct {
	XMLName  xml.Name    `xml:"root"`
	ID       string      `xml:"id,attr"`
	ParentID string      `xml:"parentId,attr"`
	Folders  []xmlFolder `xml:"folder"`
	Items    []xmlItem   `xml:"item"`
	Formats  []xmlFormat `xml:"format"`
}

// indexDocument is the decoded-but-not-yet-validated on-disk index.
type indexDocument struct {
	Folders []Folder
	Items   []Item
}

func parseUint64(s string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

func parseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func mediaTypeFromCode(s string) MediaType {
	switch strings.TrimSpace(s) {
	case "1":
		return Audio
	case "2":
		return Picture
	case "3":
		return Video
	default:
		return Unknown
	}
}

func streamKindFromCode(s string) StreamKind {
	switch strings.TrimSpace(s) {
	case "audio":
		return StreamAudio
	case "video":
		return StreamVideo
	case "image":
		return StreamImage
	case "subtitle":
		return StreamSubtitle
	default:
		return StreamUnknown
	}
}

func streamKindCode(k StreamKind) string {
	switch k {
	case StreamAudio:
		return "audio"
	case StreamVideo:
		return "video"
	case StreamImage:
		return "image"
	case StreamSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// convertFolder turns one decoded xmlFolder into a typed Folder. ok is
// false if a required numeric attribute failed to parse (IndexCorrupt for
// just this entry).
func convertFolder(f xmlFolder) (Folder, bool) {
	id, ok := parseUint64(f.ID)
	if !ok {
		return Folder{}, false
	}
	parentID, ok := parseUint64(f.ParentID)
	if !ok {
		return Folder{}, false
	}
	count, _ := parseUint64(f.Count)
	lastMod, ok := parseInt64(f.LastModified)
	if !ok {
		return Folder{}, false
	}
	return Folder{
		ID:           id,
		ParentID:     parentID,
		Title:        f.Title,
		Path:         f.Path,
		ChildCount:   uint32(count),
		LastModified: lastMod,
	}, true
}

func convertItem(it xmlItem) (Item, bool) {
	id, ok := parseUint64(it.ID)
	if !ok {
		return Item{}, false
	}
	parentID, ok := parseUint64(it.ParentID)
	if !ok {
		return Item{}, false
	}
	lastMod, ok := parseInt64(it.LastModified)
	if !ok {
		return Item{}, false
	}
	size, _ := parseUint64(it.Size)

	item := Item{
		ID:           id,
		ParentID:     parentID,
		LastModified: lastMod,
		FilePath:     it.Path,
		FileSize:     size,
		Duration:     it.Duration,
		MediaType:    mediaTypeFromCode(it.Type),
	}
	for _, s := range it.Streams {
		idx, _ := parseUint64(s.Index)
		bitrate, _ := parseUint64(s.Bitrate)
		channels, _ := parseUint64(s.Channels)
		sampleRate, _ := parseUint64(s.SampleFreq)
		width, _ := parseUint64(s.Width)
		height, _ := parseUint64(s.Height)
		bitDepth, _ := parseUint64(s.BitDepth)
		item.Tracks = append(item.Tracks, Stream{
			Index:      uint8(idx),
			Kind:       streamKindFromCode(s.Type),
			Codec:      s.CodecName,
			Bitrate:    bitrate,
			Channels:   uint8(channels),
			SampleRate: uint32(sampleRate),
			Width:      uint16(width),
			Height:     uint16(height),
			BitDepth:   uint8(bitDepth),
			Language:   s.Language,
			IsDefault:  parseBool(s.IsDefault),
			IsForced:   parseBool(s.IsForced),
		})
	}
	item.MediaType = deriveMediaType(item.Tracks)
	if item.MediaType == Unknown {
		// Preserve whatever was recorded on disk if the reconstructed
		// tracks no longer justify a type (e.g. index predates a schema
		// change); never silently reclassify a known item as UNKNOWN.
		item.MediaType = mediaTypeFromCode(it.Type)
	}
	if it.Thumbnail != nil {
		fsize, _ := parseUint64(it.Thumbnail.FileSize)
		w, _ := parseUint64(it.Thumbnail.Width)
		h, _ := parseUint64(it.Thumbnail.Height)
		item.Thumbnail = generics.Some(Thumbnail{
			ItemID:   id,
			FilePath: it.Thumbnail.Path,
			FileSize: fsize,
			MimeType: it.Thumbnail.MimeType,
			Width:    uint16(w),
			Height:   uint16(h),
		})
	}
	for _, m := range it.Metas {
		applyMeta(&item.Meta, m.Name, m.Value)
	}
	return item, true
}

// applyMeta assigns one <meta name=.. value=../> pair to the MetaData
// struct, matching the name-value-pair keys item.rs serializes.
func applyMeta(meta *MetaData, name, value string) {
	switch name {
	case "title":
		meta.Title = value
	case "genre":
		meta.Genre = value
	case "descriptionShort":
		meta.DescriptionShort = value
	case "descriptionLong":
		meta.DescriptionLong = value
	case "producer":
		meta.Producer = value
	case "rating":
		meta.Rating = value
	case "actor":
		meta.Actor = value
	case "director":
		meta.Director = value
	case "publisher":
		meta.Publisher = value
	case "album":
		meta.Album = value
	case "trackNumber":
		meta.TrackNumber = value
	case "playlist":
		meta.Playlist = value
	case "contributor":
		meta.Contributor = value
	case "date":
		meta.Date = value
	case "composer":
		meta.Composer = value
	case "language":
		meta.Languages = append(meta.Languages, value)
	case "artist":
		meta.Artists = append(meta.Artists, value)
	case "copyright":
		meta.Copyrights = append(meta.Copyrights, value)
	case "fileName":
		meta.FileName = value
	case "fileExtension":
		meta.FileExtension = value
	}
}

func metaPairs(meta MetaData) []xmlMeta {
	var out []xmlMeta
	add := func(name, value string) {
		if value != "" {
			out = append(out, xmlMeta{Name: name, Value: value})
		}
	}
	add("title", meta.Title)
	add("genre", meta.Genre)
	add("descriptionShort", meta.DescriptionShort)
	add("descriptionLong", meta.DescriptionLong)
	add("producer", meta.Producer)
	add("rating", meta.Rating)
	add("actor", meta.Actor)
	add("director", meta.Director)
	add("publisher", meta.Publisher)
	add("album", meta.Album)
	add("trackNumber", meta.TrackNumber)
	add("playlist", meta.Playlist)
	add("contributor", meta.Contributor)
	add("date", meta.Date)
	add("composer", meta.Composer)
	add("fileName", meta.FileName)
	add("fileExtension", meta.FileExtension)
	for _, l := range meta.Languages {
		add("language", l)
	}
	for _, a := range meta.Artists {
		add("artist", a)
	}
	for _, c := range meta.Copyrights {
		add("copyright", c)
	}
	return out
}

// loadIndex reads and decodes the on-disk index at path. A missing file is
// not an error: it is treated as an empty library (first boot). A
// syntactically malformed file logs and is treated as empty too, per 4.A's
// "parsing never aborts the library load of unrelated entries" -- there
// simply are no entries to salvage from an unparseable document.
func loadIndex(path string, logger log.Logger) indexDocument {
	var doc indexDocument
	f, err := os.Open(path)
	if err != nil {
		return doc
	}
	defer f.Close()

	var root xmlRoot
	if err := xml.NewDecoder(f).Decode(&root); err != nil {
		logger.Levelf(log.Warning, "index %q is malformed, starting from an empty library: %s", path, err)
		return doc
	}
	for _, xf := range root.Folders {
		if folder, ok := convertFolder(xf); ok {
			doc.Folders = append(doc.Folders, folder)
		} else {
			logger.Levelf(log.Debug, "dropping folder entry with malformed attributes: %+v", xf)
		}
	}
	for _, xi := range root.Items {
		if item, ok := convertItem(xi); ok {
			doc.Items = append(doc.Items, item)
		} else {
			logger.Levelf(log.Debug, "dropping item entry with malformed attributes: %s", xi.Path)
		}
	}
	return doc
}

// saveIndex writes the index back out. When consistencyCheck is true,
// folders/items whose path no longer exists on disk are dropped, and items
// whose mtime has advanced past the recorded value are dropped too (they
// will be re-probed on next boot), per 4.C save_database.
func saveIndex(path string, folders []Folder, items []Item, containers []Container, consistencyCheck bool, statMTime func(path string) (int64, bool)) error {
	root := xmlRoot{ID: "0", ParentID: "-1"}
	for _, f := range folders {
		if consistencyCheck {
			if _, exists := statMTime(f.Path); !exists {
				continue
			}
		}
		root.Folders = append(root.Folders, xmlFolder{
			ID:           fmt.Sprint(f.ID),
			ParentID:     fmt.Sprint(f.ParentID),
			Title:        f.Title,
			Path:         f.Path,
			Count:        fmt.Sprint(f.ChildCount),
			LastModified: fmt.Sprint(f.LastModified),
		})
	}
	for _, it := range items {
		if consistencyCheck {
			mtime, exists := statMTime(it.FilePath)
			if !exists || mtime > it.LastModified {
				continue
			}
		}
		xi := xmlItem{
			ID:           fmt.Sprint(it.ID),
			ParentID:     fmt.Sprint(it.ParentID),
			LastModified: fmt.Sprint(it.LastModified),
			Path:         it.FilePath,
			Type:         it.MediaType.String(),
			Duration:     it.Duration,
			Size:         fmt.Sprint(it.FileSize),
			ContainerID:  fmt.Sprint(it.Container.ID),
		}
		for _, s := range it.Tracks {
			xi.Streams = append(xi.Streams, xmlStream{
				Index:      fmt.Sprint(s.Index),
				Type:       streamKindCode(s.Kind),
				CodecName:  s.Codec,
				Bitrate:    fmt.Sprint(s.Bitrate),
				Channels:   fmt.Sprint(s.Channels),
				SampleFreq: fmt.Sprint(s.SampleRate),
				Width:      fmt.Sprint(s.Width),
				Height:     fmt.Sprint(s.Height),
				BitDepth:   fmt.Sprint(s.BitDepth),
				Language:   s.Language,
				IsDefault:  fmt.Sprint(s.IsDefault),
				IsForced:   fmt.Sprint(s.IsForced),
			})
		}
		if thumb, ok := it.Thumbnail.Get(); ok {
			xi.Thumbnail = &xmlThumbnail{
				Path:     thumb.FilePath,
				FileSize: fmt.Sprint(thumb.FileSize),
				MimeType: thumb.MimeType,
				Width:    fmt.Sprint(thumb.Width),
				Height:   fmt.Sprint(thumb.Height),
			}
		}
		xi.Metas = metaPairs(it.Meta)
		root.Items = append(root.Items, xi)
	}
	for _, c := range containers {
		root.Formats = append(root.Formats, xmlFormat{
			ID:         fmt.Sprint(c.ID),
			Name:       c.Name,
			Extensions: strings.Join(c.Extensions, ","),
			MimeTypes:  strings.Join(c.MimeTypes, ","),
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(root)
}
