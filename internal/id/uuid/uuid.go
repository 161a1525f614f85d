// Package uuid generates task identifiers.
package uuid

import (
	"fmt"

	guuid "github.com/google/uuid"
)

// Generator produces random (v4) UUIDs.
type Generator struct{}

// New returns a Generator.
func New() Generator { return Generator{} }

// NewRawID returns a fresh random UUID.
func (Generator) NewRawID() (guuid.UUID, error) {
	id, err := guuid.NewRandom()
	if err != nil {
		return guuid.UUID{}, fmt.Errorf("generate uuid: %w", err)
	}
	return id, nil
}
