package models

// RawEvent is one calendar entry as a backend returned it.
// Timestamps are kept as the backend's strings; parsing happens during normalization.
type RawEvent struct {
	ID      string    // Event identifier, unique within the calendar
	Summary string    // Title of the event
	Creator Creator   // Who created the event
	Start   EventTime // Start of the event
	End     EventTime // End of the event
	Created string    // Creation timestamp (RFC 3339)
	Updated string    // Last modification timestamp (RFC 3339)
}

// Creator identifies the author of an event. A nil field was absent in the
// source, which is not the same as present and empty.
type Creator struct {
	DisplayName *string
	Email       *string
}

// EventTime is either a precise timestamp or an all-day date.
type EventTime struct {
	DateTime string // RFC 3339 timestamp, empty for all-day events
	Date     string // YYYY-MM-DD, set for all-day events
}

// IsTimed reports whether the time carries a precise timestamp.
func (t EventTime) IsTimed() bool {
	return t.DateTime != ""
}

// StringPtr returns a pointer to s, for building Creator values.
func StringPtr(s string) *string {
	return &s
}
