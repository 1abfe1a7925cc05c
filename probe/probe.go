// Package probe implements MediaProbe (component 4.B): extracting
// container/stream/metadata/duration information from a media file by
// delegating to ffprobe.
package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anacrolix/ffprobe"
	"github.com/anacrolix/log"

	"github.com/zeroexploit/slms/library"
)

// ErrProbeFailed is returned when ffprobe produced no usable information:
// a spawn error, missing format/streams data, or zero recognized tracks.
var ErrProbeFailed = fmt.Errorf("probe failed")

// Prober wraps ffprobe.Run to populate library.Item records, and resolves
// a file's container from its extension using the supplied table.
type Prober struct {
	Containers []library.Container
	Logger     log.Logger
}

// Probe extracts a full library.Item from the file at path. The caller is
// responsible for assigning ID/ParentID.
func (p *Prober) Probe(path string) (library.Item, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return library.Item{}, fmt.Errorf("%w: stat %q: %s", ErrProbeFailed, path, err)
	}

	info, err := ffprobe.Run(path)
	if err != nil {
		return library.Item{}, fmt.Errorf("%w: ffprobe %q: %s", ErrProbeFailed, path, err)
	}
	if info == nil || info.Format == nil || info.Streams == nil {
		return library.Item{}, fmt.Errorf("%w: %q: missing format/streams", ErrProbeFailed, path)
	}

	item := library.Item{
		FilePath:     path,
		FileSize:     uint64(fi.Size()),
		LastModified: fi.ModTime().Unix(),
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	base := filepath.Base(path)
	item.Meta.FileExtension = ext
	item.Meta.FileName = strings.TrimSuffix(base, filepath.Ext(base))

	item.Container = p.lookupContainer(stringAttr(info.Format, "format_name"), ext)
	item.Duration = convertDuration(stringAttr(info.Format, "duration"))
	applyFormatTags(&item.Meta, info.Format)

	for i, raw := range info.Streams {
		if stream, ok := parseStream(raw, i); ok {
			item.Tracks = append(item.Tracks, stream)
		}
	}
	if len(item.Tracks) == 0 {
		return library.Item{}, fmt.Errorf("%w: %q: no recognized tracks", ErrProbeFailed, path)
	}

	item.MediaType = deriveMediaType(item.Tracks)
	return item, nil
}

func stringAttr(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// numericPrefix truncates a string at its first space, the form ffprobe's
// "-unit" output uses for values like "1234 B" or "48000 Hz" (spec §6).
func numericPrefix(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}

func parseUintAttr(m map[string]interface{}, key string) uint64 {
	v, _ := strconv.ParseUint(numericPrefix(stringAttr(m, key)), 10, 64)
	return v
}

func parseBoolAttr(m map[string]interface{}, key string) bool {
	s := stringAttr(m, key)
	return s == "1" || strings.EqualFold(s, "true")
}

// applyFormatTags fills the container-level metadata tags named in spec
// §4.B: album, artist, composer, copyright, date, comment(→description),
// genre, language, publisher, track(→track_number), performer(→actor),
// title.
func applyFormatTags(meta *library.MetaData, format map[string]interface{}) {
	if v := stringAttr(format, "tag:album"); v != "" {
		meta.Album = v
	}
	if v := stringAttr(format, "tag:composer"); v != "" {
		meta.Composer = v
	}
	if v := stringAttr(format, "tag:date"); v != "" {
		meta.Date = v
	}
	if v := stringAttr(format, "tag:genre"); v != "" {
		meta.Genre = v
	}
	if v := stringAttr(format, "tag:publisher"); v != "" {
		meta.Publisher = v
	}
	if v := stringAttr(format, "tag:track"); v != "" {
		meta.TrackNumber = v
	}
	if v := stringAttr(format, "tag:title"); v != "" {
		meta.Title = v
	}
	if v := stringAttr(format, "tag:artist"); v != "" {
		meta.Artists = append(meta.Artists, v)
	}
	if v := stringAttr(format, "tag:comment"); v != "" {
		meta.DescriptionShort = v
	}
	if v := stringAttr(format, "tag:performer"); v != "" {
		meta.Actor = v
	}
	if v := stringAttr(format, "tag:copyright"); v != "" {
		meta.Copyrights = append(meta.Copyrights, v)
	}
	if v := stringAttr(format, "tag:language"); v != "" {
		meta.Languages = append(meta.Languages, v)
	}
}

func parseStream(raw map[string]interface{}, index int) (library.Stream, bool) {
	kind := streamKindFromCodecType(stringAttr(raw, "codec_type"))
	if kind == library.StreamUnknown {
		return library.Stream{}, false
	}
	return library.Stream{
		Index:      uint8(index),
		Kind:       kind,
		Codec:      stringAttr(raw, "codec_name"),
		Bitrate:    parseUintAttr(raw, "bit_rate"),
		Channels:   uint8(parseUintAttr(raw, "channels")),
		SampleRate: uint32(parseUintAttr(raw, "sample_rate")),
		Width:      uint16(parseUintAttr(raw, "width")),
		Height:     uint16(parseUintAttr(raw, "height")),
		BitDepth:   uint8(parseUintAttr(raw, "bits_per_sample")),
		Language:   stringAttr(raw, "tag:language"),
		IsDefault:  parseBoolAttr(raw, "disposition:default"),
		IsForced:   parseBoolAttr(raw, "disposition:forced"),
	}, true
}

func streamKindFromCodecType(codecType string) library.StreamKind {
	switch strings.ToLower(codecType) {
	case "video":
		return library.StreamVideo
	case "audio":
		return library.StreamAudio
	case "subtitle":
		return library.StreamSubtitle
	default:
		return library.StreamUnknown
	}
}

// convertDuration converts a floating point seconds string (ffprobe's
// `duration` format attribute) into "HH:MM:SS.mmm" truncated to two
// fractional digits; a missing/unparseable value becomes "00:00:00.00".
// Scenario S4: convertDuration("3723.456") == "01:02:03.45".
func convertDuration(s string) string {
	s = numericPrefix(strings.TrimSpace(s))
	total, err := strconv.ParseFloat(s, 64)
	if err != nil || total < 0 {
		return "00:00:00.00"
	}
	whole := int64(total)
	frac := total - float64(whole)
	hours := whole / 3600
	minutes := (whole % 3600) / 60
	seconds := whole % 60
	centis := int64(frac * 100)
	return fmt.Sprintf("%02d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

// DurationOf re-exposes convertDuration under an exported name; the
// package's tests exercise the format conversion through it against
// scenario S4.
func DurationOf(raw string) string { return convertDuration(raw) }

func (p *Prober) lookupContainer(formatName, ext string) library.Container {
	for _, c := range p.Containers {
		for _, e := range c.Extensions {
			if strings.EqualFold(e, ext) {
				return c
			}
		}
	}
	return library.Container{Name: formatName}
}

// deriveMediaType mirrors the library package's media-type invariant
// (spec §3): VIDEO iff any VIDEO track, else AUDIO iff any AUDIO track,
// else PICTURE iff any recognized track exists, else UNKNOWN.
func deriveMediaType(tracks []library.Stream) library.MediaType {
	hasVideo, hasAudio := false, false
	for _, t := range tracks {
		switch t.Kind {
		case library.StreamVideo:
			hasVideo = true
		case library.StreamAudio:
			hasAudio = true
		}
	}
	switch {
	case hasVideo:
		return library.Video
	case hasAudio:
		return library.Audio
	case len(tracks) > 0:
		return library.Picture
	default:
		return library.Unknown
	}
}
