// Package progress persists how far each named iteration got in each
// repository. All labels of one repository share a single marker fact, so
// independent iterators can advance without clobbering each other.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/factkit/sweep/internal/factstore"
)

// Kind tags marker facts in the store.
const Kind = "iterate"

// Store reads and writes per-repository, per-label cursor markers.
type Store struct {
	fs     factstore.Store
	source string
	log    *slog.Logger
}

// New creates a marker store scoped to one provenance namespace (for
// example "github"). Markers from different sources never collide.
func New(fs factstore.Store, source string, log *slog.Logger) *Store {
	return &Store{fs: fs, source: source, log: log}
}

// find returns the id of the repository's marker fact, if it exists.
// At most one such fact exists per (kind, source, repository).
func (s *Store) find(ctx context.Context, repo int64) (int64, bool, error) {
	return s.fs.First(ctx,
		factstore.Eq("kind", factstore.Text(Kind)),
		factstore.Eq("source", factstore.Text(s.source)),
		factstore.Eq("repository", factstore.Int(repo)),
	)
}

// Read returns the stored marker for (label, repo), or since when no
// marker fact exists yet or the label was never written.
func (s *Store) Read(ctx context.Context, label string, repo int64, since int64) (int64, error) {
	id, ok, err := s.find(ctx, repo)
	if err != nil {
		return 0, fmt.Errorf("failed to find marker fact for repository %d: %w", repo, err)
	}
	if !ok {
		return since, nil
	}

	value, ok, err := s.fs.GetInt(ctx, id, label)
	if err != nil {
		return 0, fmt.Errorf("failed to read marker %s for repository %d: %w", label, repo, err)
	}
	if !ok {
		return since, nil
	}
	return value, nil
}

// Write sets the label property on the repository's marker fact, creating
// the fact on first use. Other labels on the same fact are untouched, and
// writing the same value twice is harmless.
func (s *Store) Write(ctx context.Context, label string, repo int64, value int64) error {
	id, ok, err := s.find(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to find marker fact for repository %d: %w", repo, err)
	}
	if !ok {
		// First marker for this repository: the fact and all its
		// properties, label included, are created in one transaction so
		// a store failure cannot leave a half-created fact behind.
		id, err = s.fs.InsertWith(ctx,
			factstore.Property{Name: "kind", IsText: true, Text: Kind},
			factstore.Property{Name: "source", IsText: true, Text: s.source},
			factstore.Property{Name: "repository", Int: repo},
			factstore.Property{Name: label, Int: value},
		)
		if err != nil {
			return fmt.Errorf("failed to create marker fact for repository %d: %w", repo, err)
		}
		s.log.Debug("created marker fact", "repository", repo, "fact", id)
		return nil
	}

	if err := s.fs.ReplaceInt(ctx, id, label, value); err != nil {
		return fmt.Errorf("failed to write marker %s=%d for repository %d: %w", label, value, repo, err)
	}
	s.log.Debug("marker written", "label", label, "repository", repo, "value", value)
	return nil
}
