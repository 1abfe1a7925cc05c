// Package library implements the persistent, filesystem-synchronized media
// catalog: Folders, Items, their Streams/Thumbnail/MetaData, and the
// incremental sync between the on-disk XML index and the live filesystem.
package library

import "github.com/anacrolix/generics"

// MediaType classifies an Item by the kind of tracks it contains.
type MediaType int

const (
	Unknown MediaType = iota
	Audio
	Picture
	Video
)

// String renders the on-disk index type code for a MediaType.
func (t MediaType) String() string {
	switch t {
	case Audio:
		return "1"
	case Picture:
		return "2"
	case Video:
		return "3"
	default:
		return "0"
	}
}

// StreamKind classifies a single track within an Item's container.
type StreamKind int

const (
	StreamUnknown StreamKind = iota
	StreamAudio
	StreamVideo
	StreamImage
	StreamSubtitle
)

// Stream is a single elementary track reported by the probe.
type Stream struct {
	Index       uint8
	Kind        StreamKind
	Codec       string
	Bitrate     uint64
	Channels    uint8
	SampleRate  uint32
	Width       uint16
	Height      uint16
	BitDepth    uint8
	Language    string
	IsDefault   bool
	IsForced    bool
}

// Thumbnail is present iff FilePath names an existing file.
type Thumbnail struct {
	ItemID   uint64
	FilePath string
	FileSize uint64
	MimeType string
	Width    uint16
	Height   uint16
}

// Container describes a known file container format.
type Container struct {
	ID         uint64
	Name       string
	Extensions []string
	MimeTypes  []string
}

// MetaData is the descriptive tag set extracted from a probed file.
type MetaData struct {
	Title             string
	Genre             string
	DescriptionShort  string
	DescriptionLong   string
	Producer          string
	Rating            string
	Actor             string
	Director          string
	Publisher         string
	Album             string
	TrackNumber       string
	Playlist          string
	Contributor       string
	Date              string
	Composer          string
	Languages         []string
	Artists           []string
	Copyrights        []string
	FileName          string
	FileExtension     string
}

// Folder is a directory node in the library tree. Root is id 0 and has no
// parent; its ParentID field is 0.
type Folder struct {
	ID           uint64
	ParentID     uint64
	Title        string
	Path         string
	ChildCount   uint32
	LastModified int64
}

// Item is a single media file in the library.
type Item struct {
	ID           uint64
	ParentID     uint64
	LastModified int64
	FilePath     string
	FileSize     uint64
	Duration     string
	MediaType    MediaType
	Container    Container
	Tracks       []Stream
	Thumbnail    generics.Option[Thumbnail]
	Meta         MetaData
}

// DefaultStream returns the first audio/video track flagged IsDefault, or
// failing that the first audio/video track; DIDL-Lite
// resolution/bitrate/channel/sample-rate fields are derived from it.
func (it *Item) DefaultStream() (Stream, bool) {
	for _, s := range it.Tracks {
		if s.IsDefault && (s.Kind == StreamAudio || s.Kind == StreamVideo) {
			return s, true
		}
	}
	for _, s := range it.Tracks {
		if s.Kind == StreamAudio || s.Kind == StreamVideo {
			return s, true
		}
	}
	return Stream{}, false
}

// deriveMediaType implements the invariant from spec §3: VIDEO iff any
// track is VIDEO; else AUDIO iff any track is AUDIO; else PICTURE iff any
// recognized track exists; else UNKNOWN.
func deriveMediaType(tracks []Stream) MediaType {
	hasVideo, hasAudio, hasAny := false, false, false
	for _, s := range tracks {
		switch s.Kind {
		case StreamVideo:
			hasVideo = true
			hasAny = true
		case StreamAudio:
			hasAudio = true
			hasAny = true
		case StreamImage, StreamSubtitle:
			hasAny = true
		}
	}
	switch {
	case hasVideo:
		return Video
	case hasAudio:
		return Audio
	case hasAny:
		return Picture
	default:
		return Unknown
	}
}
