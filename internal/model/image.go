package model

import "time"

// GeneratedImage is one row of a user's generation history.
// Only the immutable storage path is persisted; signed URLs are derived on demand.
type GeneratedImage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Prompt    string    `json:"prompt"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredImage is an object written by the secure copy into the private bucket.
type StoredImage struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// RawImageReference is the public URL returned by the generation webhook.
type RawImageReference struct {
	URL string `json:"url"`
}

// SignedURL is a time-limited capability to read one stored object.
type SignedURL struct {
	URL       string    `json:"signed_url"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the URL is no longer valid at now.
func (s SignedURL) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
