package domain

import "fmt"

// Locations is the configured set of physical locations. The first one is
// the default for requests that leave location_id empty.
type Locations struct {
	known    map[string]bool
	fallback string
}

// NewLocations builds the set from the configured ids.
func NewLocations(ids []string) Locations {
	l := Locations{known: make(map[string]bool, len(ids))}
	for _, id := range ids {
		l.known[id] = true
	}
	if len(ids) > 0 {
		l.fallback = ids[0]
	}
	return l
}

// Resolve maps an empty id to the default and rejects ids that are not configured.
func (l Locations) Resolve(id string) (string, error) {
	if id == "" {
		id = l.fallback
	}
	if !l.known[id] {
		return "", fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	return id, nil
}
