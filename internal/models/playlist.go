package models

// Playlist is one imported source together with the channels and categories it owns.
// CreatedAt and UpdatedAt are millisecond epochs.
type Playlist struct {
	ID          string             `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	URL         *string            `json:"url,omitempty" db:"url"`
	Type        PlaylistType       `json:"type" db:"type"`
	Channels    []Channel          `json:"channels" db:"-"`
	Categories  []Category         `json:"categories,omitempty" db:"-"`
	Credentials *XtreamCredentials `json:"-" db:"-"`
	CreatedAt   int64              `json:"created_at" db:"created_at"`
	UpdatedAt   int64              `json:"updated_at" db:"updated_at"`
}

// XtreamCredentials identify an account on an Xtream Codes panel.
type XtreamCredentials struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}
