// Package contests exposes finished contest results to the rating engine.
package contests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/skillrank/internal/domain/dedupe"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/internal/domain/period"
)

// Source is the read side of the contest store.
type Source interface {
	// ContestsBetween returns contests whose start lies in [from, to),
	// ordered by start time.
	ContestsBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error)
	// GameIDs returns the distinct game ids seen in any contest, sorted.
	GameIDs(ctx context.Context) ([]string, error)
	// EarliestStart returns the start of the oldest contest as stored, or
	// "" when there are none.
	EarliestStart(ctx context.Context) (string, error)
}

// MemorySource is a Source backed by a slice.
type MemorySource struct {
	mu       sync.RWMutex
	contests []model.Contest
	// earliest overrides EarliestStart when set.
	earliest *string
	ids      dedupe.Set
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource returns a source holding contests.
func NewMemorySource(contests ...model.Contest) *MemorySource {
	s := &MemorySource{ids: dedupe.New(dedupe.WithMaxSize(0))}
	s.Add(contests...)
	return s
}

// Add appends contests.
func (s *MemorySource) Add(contests ...model.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contests {
		if c.ContestID != "" {
			s.ids.SeenAndRecord(c.ContestID)
		}
		c.Start = c.Start.UTC()
		c.Participants = append([]model.Participant(nil), c.Participants...)
		s.contests = append(s.contests, c)
	}
	sort.SliceStable(s.contests, func(i, j int) bool { return s.contests[i].Start.Before(s.contests[j].Start) })
}

// SetEarliestStart forces the raw value EarliestStart reports.
func (s *MemorySource) SetEarliestStart(raw string) {
	s.mu.Lock()
	s.earliest = &raw
	s.mu.Unlock()
}

// ContestsBetween implements Source.
func (s *MemorySource) ContestsBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Contest
	for _, c := range s.contests {
		if !c.Start.Before(from) && c.Start.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GameIDs implements Source.
func (s *MemorySource) GameIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return period.GameIDs(s.contests), nil
}

// EarliestStart implements Source.
func (s *MemorySource) EarliestStart(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.earliest != nil {
		return *s.earliest, nil
	}
	if len(s.contests) == 0 {
		return "", nil
	}
	return s.contests[0].Start.Format(time.RFC3339Nano), nil
}

// Sink is the write side of the contest store.
type Sink interface {
	InsertContest(ctx context.Context, c model.Contest) error
}

var _ Sink = (*MemorySource)(nil)

// ErrEmptyContestID is returned when inserting a contest without an id.
var ErrEmptyContestID = errors.New("empty contest id")

// InsertContest implements Sink. Re-inserting a contest id is a no-op.
func (s *MemorySource) InsertContest(ctx context.Context, c model.Contest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ContestID == "" {
		return ErrEmptyContestID
	}
	if s.ids.SeenAndRecord(c.ContestID) {
		return nil
	}
	s.Add(c)
	return nil
}
