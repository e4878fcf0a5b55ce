// Package batch carries the identity and timestamp of one archive run.
package batch

import (
	"time"

	"github.com/google/uuid"
)

// Context identifies one run. Every record written during the run uses
// Time for its timestamps so that a run is internally consistent.
type Context struct {
	ID   uuid.UUID
	Time time.Time
}

// New starts a batch at the current UTC time.
func New() Context {
	return At(time.Now().UTC())
}

// At starts a batch at a fixed time.
func At(t time.Time) Context {
	return Context{ID: uuid.New(), Time: t}
}

// Year returns the calendar year of the batch time.
func (c Context) Year() int { return c.Time.Year() }
