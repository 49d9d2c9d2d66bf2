package domain

import "encoding/json"

// Venue describes a listing page with the parser strategy that understands it.
type Venue struct {
	Title   string
	URL     string
	BaseURL string
	Parser  string
}

// EventReference is a single event link found on a venue listing page.
// Date is an ISO YYYY-MM-DD string or empty when the listing does not show one.
type EventReference struct {
	URL  string
	Date string
}

type eventReferenceJSON struct {
	URL  string  `json:"url"`
	Date *string `json:"date"`
}

// MarshalJSON writes an absent date as null.
func (e EventReference) MarshalJSON() ([]byte, error) {
	wire := eventReferenceJSON{URL: e.URL}
	if e.Date != "" {
		date := e.Date
		wire.Date = &date
	}
	return json.Marshal(wire)
}

// UnmarshalJSON accepts both null and missing dates.
func (e *EventReference) UnmarshalJSON(data []byte) error {
	var wire eventReferenceJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.URL = wire.URL
	e.Date = ""
	if wire.Date != nil {
		e.Date = *wire.Date
	}
	return nil
}

// EventDetail is the enriched form of an EventReference.
// A failed extraction carries only URL and Error.
type EventDetail struct {
	Title       string `json:"title,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Place       string `json:"place,omitempty"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the detail is an error placeholder.
func (d EventDetail) Failed() bool {
	return d.Error != ""
}

// FailedDetail builds the placeholder stored instead of a detail.
func FailedDetail(url, reason string) EventDetail {
	return EventDetail{URL: url, Error: reason}
}

// FetchedSnapshot is persisted as fetched-events.json.
type FetchedSnapshot = VenueEvents[EventReference]

// ProcessedSnapshot is persisted as processed-events.json.
type ProcessedSnapshot = VenueEvents[EventDetail]

// Artifact is a rendered image on disk.
type Artifact struct {
	Venue string
	Slug  string
	// Path is the absolute (or working-dir relative) file path.
	Path string
	// Rel is the path relative to the images dir, e.g. "Sono/night-fever.png".
	Rel string
	// Source is the inlined background image used while rendering, if any.
	Source string
}
