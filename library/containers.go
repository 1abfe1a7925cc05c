package library

// DefaultContainers is the built-in Container table covering the common
// audio/video/picture formats ffprobe reports, used to resolve a probed
// file's container from both its format name and its extension.
func DefaultContainers() []Container {
	return []Container{
		{ID: 1, Name: "matroska,webm", Extensions: []string{"mkv", "webm"}, MimeTypes: []string{"video/x-matroska", "video/webm"}},
		{ID: 2, Name: "avi", Extensions: []string{"avi"}, MimeTypes: []string{"video/x-msvideo"}},
		{ID: 3, Name: "mov,mp4,m4a,3gp,3g2,mj2", Extensions: []string{"mp4", "m4v", "m4a", "mov"}, MimeTypes: []string{"video/mp4", "audio/mp4", "video/quicktime"}},
		{ID: 4, Name: "mpeg", Extensions: []string{"mpg", "mpeg", "mpe"}, MimeTypes: []string{"video/mpeg"}},
		{ID: 5, Name: "mp3", Extensions: []string{"mp3"}, MimeTypes: []string{"audio/mpeg"}},
		{ID: 6, Name: "wav", Extensions: []string{"wav"}, MimeTypes: []string{"audio/x-wav"}},
		{ID: 7, Name: "flac", Extensions: []string{"flac"}, MimeTypes: []string{"audio/flac"}},
		{ID: 8, Name: "ogg", Extensions: []string{"ogg", "oga", "ogv"}, MimeTypes: []string{"audio/ogg", "video/ogg"}},
		{ID: 9, Name: "image2", Extensions: []string{"jpg", "jpeg", "jpe", "png", "gif"}, MimeTypes: []string{"image/jpeg", "image/png", "image/gif"}},
	}
}
