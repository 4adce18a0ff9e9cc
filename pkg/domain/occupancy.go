package domain

import "time"

// OccupancyState is the live headcount of one location. Version increases on
// every write so observers can discard out-of-order notifications.
type OccupancyState struct {
	LocationID  string    `json:"location_id"`
	Count       int64     `json:"count"`
	Version     int64     `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}
