package contentdirectory

import (
	"fmt"
	"strings"

	"github.com/zeroexploit/slms/dlna"
	"github.com/zeroexploit/slms/library"
)

// mimeByExtension implements the MIME derivation table from spec §4.F.
func mimeByExtension(ext string, mediaType library.MediaType) string {
	ext = strings.ToLower(ext)
	switch mediaType {
	case library.Video:
		switch ext {
		case "mkv":
			return "video/x-matroska"
		case "avi":
			return "video/x-msvideo"
		case "mpeg", "mpg", "mpe":
			return "video/mpeg"
		case "mov", "qt":
			return "video/quicktime"
		case "mp4":
			return "video/mp4"
		default:
			return "video/*"
		}
	case library.Audio:
		switch ext {
		case "mp3":
			return "audio/mpeg"
		case "wav":
			return "audio/x-wav"
		case "flac":
			return "audio/flac"
		default:
			return "audio/*"
		}
	case library.Picture:
		switch ext {
		case "jpg", "jpeg", "jpe":
			return "image/jpeg"
		case "png":
			return "image/png"
		default:
			return "image/*"
		}
	default:
		return "*"
	}
}

func upnpClass(mediaType library.MediaType) string {
	switch mediaType {
	case library.Audio:
		return "object.item.audioItem"
	case library.Video:
		return "object.item.videoItem"
	case library.Picture:
		return "object.item.imageItem"
	default:
		return "object.item"
	}
}

// escapeTitle applies the single custom substitution spec §4.F calls out
// ("&" replaced by " u. ") on top of normal XML escaping of the rest.
func escapeTitle(s string) string {
	s = strings.ReplaceAll(s, "&", " u. ")
	return xmlEscape(s)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

func metaElement(tag, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("<%s>%s</%s>", tag, xmlEscape(value), tag)
}

// RenderFolder produces the <container> DIDL-Lite element for a folder,
// per spec §4.F.
func RenderFolder(f library.Folder) string {
	return fmt.Sprintf(
		`<container id="%d" parentID="%d" childCount="%d" restricted="1">`+
			`<dc:title>%s</dc:title>`+
			`<dc:date>%d</dc:date>`+
			`<upnp:storageMedium>HDD</upnp:storageMedium>`+
			`<upnp:class>object.container.storageFolder</upnp:class>`+
			`</container>`,
		f.ID, f.ParentID, f.ChildCount, escapeTitle(f.Title), f.LastModified,
	)
}

// RenderOptions carries the per-renderer DIDL flags spec §6 names.
type RenderOptions struct {
	TitleInsteadOfName bool
	HideFileExtension  bool
}

// MimeType exposes mimeByExtension for the stream handler, which needs the
// same derivation to set the HTTP Content-Type on /stream/{id}.
func MimeType(it library.Item) string {
	return mimeByExtension(it.Meta.FileExtension, it.MediaType)
}

func itemTitle(it library.Item, opt RenderOptions) string {
	if opt.TitleInsteadOfName && it.Meta.Title != "" {
		return it.Meta.Title
	}
	name := it.Meta.FileName
	if !opt.HideFileExtension && it.Meta.FileExtension != "" {
		name = name + "." + it.Meta.FileExtension
	}
	return name
}

// RenderItem produces the <item> DIDL-Lite element for a media item, per
// spec §4.F. host is the request's Host header, used to build the
// absolute stream URL.
func RenderItem(it library.Item, opt RenderOptions, host string) string {
	mime := mimeByExtension(it.Meta.FileExtension, it.MediaType)
	var b strings.Builder
	fmt.Fprintf(&b, `<item id="%d" parentID="%d" restricted="1">`, it.ID, it.ParentID)
	fmt.Fprintf(&b, `<dc:title>%s</dc:title>`, escapeTitle(itemTitle(it, opt)))

	fmt.Fprintf(&b, `<res protocolInfo="http-get:*:%s:%s" size="%d">http://%s/stream/%d</res>`,
		mime, dlna.ContentFeatures{SupportRange: true}.String(), it.FileSize, host, it.ID)

	if it.MediaType == library.Picture || it.MediaType == library.Video {
		stream, hasDefault := it.DefaultStream()
		var bitrate uint64
		var channels uint8
		var sampleRate uint32
		if hasDefault {
			bitrate, channels, sampleRate = stream.Bitrate, stream.Channels, stream.SampleRate
		}
		fmt.Fprintf(&b, `<bitrate>%d</bitrate>`, bitrate)
		fmt.Fprintf(&b, `<duration>%s</duration>`, it.Duration)
		fmt.Fprintf(&b, `<nrAudioChannels>%d</nrAudioChannels>`, channels)
		fmt.Fprintf(&b, `<sampleFrequency>%d</sampleFrequency>`, sampleRate)
		if it.MediaType == library.Video && hasDefault && stream.Width > 0 && stream.Height > 0 {
			fmt.Fprintf(&b, `<resolution>%dx%d</resolution>`, stream.Width, stream.Height)
		}
	}

	fmt.Fprintf(&b, `<upnp:class>%s</upnp:class>`, upnpClass(it.MediaType))

	b.WriteString(metaElement("upnp:genre", it.Meta.Genre))
	b.WriteString(metaElement("dc:description", it.Meta.DescriptionShort))
	b.WriteString(metaElement("upnp:longDescription", it.Meta.DescriptionLong))
	b.WriteString(metaElement("upnp:producer", it.Meta.Producer))
	b.WriteString(metaElement("upnp:rating", it.Meta.Rating))
	b.WriteString(metaElement("upnp:actor", it.Meta.Actor))
	b.WriteString(metaElement("upnp:director", it.Meta.Director))
	b.WriteString(metaElement("dc:publisher", it.Meta.Publisher))
	b.WriteString(metaElement("upnp:album", it.Meta.Album))
	b.WriteString(metaElement("upnp:originalTrackNumber", it.Meta.TrackNumber))
	b.WriteString(metaElement("upnp:playlist", it.Meta.Playlist))
	b.WriteString(metaElement("dc:contributor", it.Meta.Contributor))
	b.WriteString(metaElement("upnp:date", it.Meta.Date))
	for _, lang := range it.Meta.Languages {
		b.WriteString(metaElement("dc:language", lang))
	}
	for _, artist := range it.Meta.Artists {
		b.WriteString(metaElement("upnp:artist", artist))
	}
	for _, rights := range it.Meta.Copyrights {
		b.WriteString(metaElement("dc:rights", rights))
	}

	b.WriteString(`</item>`)
	return b.String()
}

// didlLite wraps inner element XML in the DIDL-Lite document envelope.
func didlLite(inner string) string {
	return `<DIDL-Lite` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"` +
		` xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
		` xmlns:dlna="urn:schemas-dlna-org:metadata-1-0/">` +
		inner +
		`</DIDL-Lite>`
}
