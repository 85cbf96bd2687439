// Package repos resolves configured repository name patterns into the
// concrete list of repository ids a run sweeps over.
package repos

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/factkit/sweep/internal/factstore"
)

// Resolver turns repository name patterns into an ordered, deduplicated
// list of repository ids.
type Resolver interface {
	Resolve(ctx context.Context, patterns []string) ([]int64, error)
}

// FactResolver resolves patterns against repository facts previously
// registered in the fact store (kind "repository", with "repository" and
// "full_name" properties). Patterns are "owner/name" with shell-style
// wildcards in either part; a pattern prefixed with "-" excludes matches.
type FactResolver struct {
	fs factstore.Store
}

// NewFactResolver creates a resolver over the given store.
func NewFactResolver(fs factstore.Store) *FactResolver {
	return &FactResolver{fs: fs}
}

var _ Resolver = (*FactResolver)(nil)

// Register records a repository fact so the resolver can find it. Calling
// it again for a known id is an error; ids are stable upstream identifiers.
func (r *FactResolver) Register(ctx context.Context, id int64, fullName string) error {
	_, exists, err := r.fs.First(ctx,
		factstore.Eq("kind", factstore.Text("repository")),
		factstore.Eq("repository", factstore.Int(id)),
	)
	if err != nil {
		return fmt.Errorf("failed to look up repository %d: %w", id, err)
	}
	if exists {
		return fmt.Errorf("repository %d is already registered", id)
	}

	fact, err := r.fs.Insert(ctx)
	if err != nil {
		return fmt.Errorf("failed to create repository fact: %w", err)
	}
	if err := r.fs.SetText(ctx, fact, "kind", "repository"); err != nil {
		return err
	}
	if err := r.fs.SetInt(ctx, fact, "repository", id); err != nil {
		return err
	}
	return r.fs.SetText(ctx, fact, "full_name", fullName)
}

// known returns every registered repository as id -> full name.
func (r *FactResolver) known(ctx context.Context) (map[int64]string, error) {
	ids, err := r.fs.Facts(ctx, factstore.Eq("kind", factstore.Text("repository")))
	if err != nil {
		return nil, fmt.Errorf("failed to list repository facts: %w", err)
	}

	repos := make(map[int64]string, len(ids))
	for _, fact := range ids {
		id, ok, err := r.fs.GetInt(ctx, fact, "repository")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		name, ok, err := r.fs.GetText(ctx, fact, "full_name")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		repos[id] = name
	}
	return repos, nil
}

// Resolve matches patterns against registered repositories. The result is
// deduplicated and sorted by id so sweep order is stable across runs.
func (r *FactResolver) Resolve(ctx context.Context, patterns []string) ([]int64, error) {
	known, err := r.known(ctx)
	if err != nil {
		return nil, err
	}

	selected := map[int64]bool{}
	for _, pattern := range patterns {
		exclude := false
		if len(pattern) > 0 && pattern[0] == '-' {
			exclude = true
			pattern = pattern[1:]
		}
		if pattern == "" {
			return nil, fmt.Errorf("empty repository pattern")
		}
		for id, name := range known {
			matched, err := path.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("bad repository pattern %q: %w", pattern, err)
			}
			if !matched {
				continue
			}
			if exclude {
				delete(selected, id)
			} else {
				selected[id] = true
			}
		}
	}

	ids := make([]int64, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
