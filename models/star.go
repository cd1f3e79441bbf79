package models

// Star represents a row in the "stars" table.
// ID is zero until the record has been persisted.
type Star struct {
	ID       int64  `json:"id" yaml:"id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Distance int64  `json:"distance" yaml:"distance"`
}

// CreateStarParams holds the fields required to create a new star.
// The store assigns the id, so it is not accepted here.
type CreateStarParams struct {
	Name     string `json:"name" yaml:"name"`
	Distance int64  `json:"distance" yaml:"distance"`
}

// UpdateStarParams holds the replacement values for an existing star.
// Both fields are overwritten; there is no partial update.
type UpdateStarParams struct {
	Name     string `json:"name"`
	Distance int64  `json:"distance"`
}
