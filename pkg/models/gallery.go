package models

// GalleryEntry is one positioned memory reference inside a gallery.
type GalleryEntry struct {
	Memory   string `json:"memory"`
	Caption  string `json:"caption,omitempty"`
	Featured bool   `json:"featured,omitempty"`
	Position int    `json:"position"`
}

// Gallery is an ordered collection of memory references owned by the
// same capsule as its member memories.
type Gallery struct {
	ID        string         `json:"id"`
	Capsule   string         `json:"capsule"`
	Title     string         `json:"title,omitempty"`
	Entries   []GalleryEntry `json:"entries,omitempty"`
	Creator   string         `json:"creator"`
	CreatedTS int64          `json:"created_ts"`
	UpdatedTS int64          `json:"updated_ts"`
}

// GalleryPartial carries optional gallery updates; a non-nil Entries
// replaces the whole entry list.
type GalleryPartial struct {
	Title   *string         `json:"title,omitempty"`
	Entries *[]GalleryEntry `json:"entries,omitempty"`
}
