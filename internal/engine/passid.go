package engine

import "github.com/google/uuid"

// PassIDGenerator names passes. Every entry a pass appends carries its id.
type PassIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 pass ids, so sorting
// history by pass id also sorts it by pass start.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
