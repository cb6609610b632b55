package models

// Candidate is a normalized catalog search result.
type Candidate struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Image        string  `json:"image,omitempty"`
	ReleasedYear int     `json:"releasedYear,omitempty"`
	Rating       float64 `json:"rating"` // 0-10
}
