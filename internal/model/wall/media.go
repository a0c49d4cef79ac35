package wall

import "time"

// MediaType distinguishes the two accepted upload categories.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaFile is the persisted record for an uploaded photo or video.
// Filename is a server-generated storage key, decoupled from the
// user-supplied name to avoid collisions and path traversal.
type MediaFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Type         MediaType `json:"type"`
	Size         int64     `json:"size"`
	Timestamp    time.Time `json:"timestamp"`
}

// MediaWithURL augments a MediaFile with the serve-by-id URL clients
// fetch the bytes from.
type MediaWithURL struct {
	MediaFile
	URL string `json:"url"`
}

// ServeURL returns the serve-by-id path for a media record.
func ServeURL(id string) string {
	return "/api/media/serve/" + id
}

// WithURL wraps a MediaFile with its derived URL.
func (m MediaFile) WithURL() MediaWithURL {
	return MediaWithURL{MediaFile: m, URL: ServeURL(m.ID)}
}
