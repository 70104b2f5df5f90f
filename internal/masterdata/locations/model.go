package locations

import "time"

// BinLocation is one physical storage slot, addressed zone/aisle/shelf/bin.
type BinLocation struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Zone      string    `json:"zone"`
	Aisle     string    `json:"aisle,omitempty"`
	Shelf     string    `json:"shelf,omitempty"`
	Bin       string    `json:"bin,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
