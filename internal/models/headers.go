package models

// ChannelHeaders holds optional HTTP headers for a channel (from EXTVLCOPT).
type ChannelHeaders struct {
	Referrer   *string `json:"referrer,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	HTTPOrigin *string `json:"http_origin,omitempty"`
}

// Empty reports whether no header is set.
func (h *ChannelHeaders) Empty() bool {
	return h == nil || (h.Referrer == nil && h.UserAgent == nil && h.HTTPOrigin == nil)
}
