package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// VenueEvents is a venue title -> events mapping that remembers insertion order.
// It marshals to a JSON object whose keys follow that order.
type VenueEvents[T any] struct {
	order []string
	items map[string][]T
}

// NewVenueEvents returns an empty mapping.
func NewVenueEvents[T any]() *VenueEvents[T] {
	return &VenueEvents[T]{items: map[string][]T{}}
}

// Set replaces the events of a venue, appending the venue to the order when new.
func (v *VenueEvents[T]) Set(venue string, events []T) {
	if v.items == nil {
		v.items = map[string][]T{}
	}
	if _, ok := v.items[venue]; !ok {
		v.order = append(v.order, venue)
	}
	if events == nil {
		events = []T{}
	}
	v.items[venue] = events
}

// Get returns the events of a venue.
func (v *VenueEvents[T]) Get(venue string) ([]T, bool) {
	if v == nil || v.items == nil {
		return nil, false
	}
	events, ok := v.items[venue]
	return events, ok
}

// Venues lists venue titles in insertion order.
func (v *VenueEvents[T]) Venues() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Len is the number of venues.
func (v *VenueEvents[T]) Len() int {
	if v == nil {
		return 0
	}
	return len(v.order)
}

// Total counts events across all venues.
func (v *VenueEvents[T]) Total() int {
	if v == nil {
		return 0
	}
	total := 0
	for _, venue := range v.order {
		total += len(v.items[venue])
	}
	return total
}

// MarshalJSON writes venues in insertion order.
func (v *VenueEvents[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if v != nil {
		for i, venue := range v.order {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(venue)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(v.items[venue])
			if err != nil {
				return nil, fmt.Errorf("venue %s: %w", venue, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order found in the document.
func (v *VenueEvents[T]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("venue events: expected object, got %v", tok)
	}

	v.order = nil
	v.items = map[string][]T{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		venue, ok := tok.(string)
		if !ok {
			return fmt.Errorf("venue events: expected key, got %v", tok)
		}

		var events []T
		if err := dec.Decode(&events); err != nil {
			return fmt.Errorf("venue %s: %w", venue, err)
		}
		v.Set(venue, events)
	}

	_, err = dec.Token()
	return err
}
