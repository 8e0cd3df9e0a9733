package models

// EpgProgram is a guide entry covering the half-open interval [StartTime, EndTime),
// both millisecond epochs.
type EpgProgram struct {
	ID          string  `json:"id" db:"id"`
	ChannelID   string  `json:"channel_id" db:"channel_id"`
	Title       string  `json:"title" db:"title"`
	Description *string `json:"description,omitempty" db:"description"`
	StartTime   int64   `json:"start_time" db:"start_time"`
	EndTime     int64   `json:"end_time" db:"end_time"`
}

// Covers reports whether ts falls inside the program interval.
func (p EpgProgram) Covers(ts int64) bool {
	return ts >= p.StartTime && ts < p.EndTime
}
