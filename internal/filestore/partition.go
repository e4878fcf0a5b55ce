package filestore

import (
	"fmt"
	"path"
	"time"
)

// WeekSlot returns the weekly archive slot for t, "<year>/week-<ww>". The
// year is the calendar year and the week the ISO week number.
func WeekSlot(t time.Time) string {
	_, week := t.ISOWeek()
	return fmt.Sprintf("%d/week-%02d", t.Year(), week)
}

// Partitioner chooses the archive file for an entity at a batch time.
type Partitioner interface {
	ArchivePath(s *Store, id string, at time.Time) (string, error)
}

// Weekly files archives in one slot per week. Build receives the entity
// id and the WeekSlot of the batch time.
type Weekly func(id, slot string) string

// ArchivePath implements Partitioner.
func (p Weekly) ArchivePath(_ *Store, id string, at time.Time) (string, error) {
	return p(id, WeekSlot(at)), nil
}

// Yearly files archives in one slot per calendar year.
type Yearly func(id string, year int) string

// ArchivePath implements Partitioner.
func (p Yearly) ArchivePath(_ *Store, id string, at time.Time) (string, error) {
	return p(id, at.Year()), nil
}

// Versioned files archives as v<N>.json in the directory returned for
// the id, with N one past the highest existing version.
type Versioned func(id string) string

// ArchivePath implements Partitioner.
func (p Versioned) ArchivePath(s *Store, id string, _ time.Time) (string, error) {
	dir := p(id)
	latest, err := s.LatestVersion(dir)
	if err != nil {
		return "", err
	}
	return path.Join(dir, fmt.Sprintf("v%d.json", latest+1)), nil
}
