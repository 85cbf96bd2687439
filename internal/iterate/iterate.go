// Package iterate is the repository iteration engine: a resumable,
// budget-aware polling loop that asks, for each configured repository,
// "what is the next item after the last one I processed?", hands the item
// to caller-supplied logic, and durably records how far it got.
package iterate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/factkit/sweep/internal/budget"
	"github.com/factkit/sweep/internal/config"
	"github.com/factkit/sweep/internal/factstore"
	"github.com/factkit/sweep/internal/gh"
	"github.com/factkit/sweep/internal/progress"
	"github.com/factkit/sweep/internal/repos"
)

// Parameter names every iteration query binds.
const (
	// ParamBefore is the current cursor value of the repository.
	ParamBefore = "before"
	// ParamRepository is the id of the repository being swept.
	ParamRepository = "repository"
)

// identPattern is the shape labels and sort properties must have.
var identPattern = regexp.MustCompile(`^[_a-z][a-zA-Z0-9_]*$`)

// Callback receives one candidate item and returns the new cursor for the
// repository. Returning an error aborts the whole run; progress made by
// earlier repositories is still persisted.
type Callback func(ctx context.Context, repo int64, candidate int64) (int64, error)

// Summary describes what one Over call accomplished.
type Summary struct {
	// RunID uniquely identifies this invocation in logs.
	RunID string
	// Label is the iteration's marker label.
	Label string
	// Invocations is how many times the callback ran.
	Invocations int
	// Restarted is how many repositories ran out of candidates.
	Restarted int
	// Persisted is how many repository markers were written back.
	Persisted int
	// StopReason is the budget signal that ended the run early, if any.
	StopReason budget.Reason
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// session is the transient per-repository state of one Over call.
type session struct {
	seen      int
	before    int64
	start     int64
	restarted bool
	sorted    *sortedBuffer
}

// Iterator is the engine's configuration surface. Build one with New,
// chain As / By and the optional modifiers, then call Over. Configuration
// mistakes are remembered and surface as the error of Over; only the
// first mistake is reported.
type Iterator struct {
	fs       factstore.Store
	log      *slog.Logger
	opts     *config.Options
	oracle   gh.Oracle
	resolver repos.Resolver
	progress *progress.Store

	label    string
	query    factstore.Query
	querySet bool
	sortBy   string
	repeats  int
	aware    budget.Awareness
	err      error
}

// New creates an iterator over the given collaborators. All three budget
// signals start enabled and repeats defaults to 1.
func New(fs factstore.Store, log *slog.Logger, opts *config.Options, oracle gh.Oracle, resolver repos.Resolver) *Iterator {
	return &Iterator{
		fs:       fs,
		log:      log,
		opts:     opts,
		oracle:   oracle,
		resolver: resolver,
		progress: progress.New(fs, opts.Source, log),
		repeats:  1,
		aware:    budget.Aware(),
	}
}

// fail records the first configuration mistake.
func (it *Iterator) fail(format string, args ...any) *Iterator {
	if it.err == nil {
		it.err = fmt.Errorf(format, args...)
	}
	return it
}

// As names the iteration. The label scopes this iteration's marker on each
// repository's marker fact. One-shot.
func (it *Iterator) As(label string) *Iterator {
	if it.label != "" {
		return it.fail("label is already set to %q", it.label)
	}
	if label == "" {
		return it.fail("label must not be empty")
	}
	if !identPattern.MatchString(label) {
		return it.fail("label %q is not a valid identifier", label)
	}
	it.label = label
	return it
}

// By sets the parametrized query that finds the next candidate. Both
// $before and $repository are available at execution time; queries may
// reference either, both, or neither, but nothing else. One-shot.
func (it *Iterator) By(q factstore.Query) *Iterator {
	if it.querySet {
		return it.fail("query is already set")
	}
	if err := q.Validate(); err != nil {
		return it.fail("bad query: %v", err)
	}
	for _, name := range q.Params() {
		if name != ParamBefore && name != ParamRepository {
			return it.fail("query references unknown parameter $%s", name)
		}
	}
	it.query = q
	it.querySet = true
	return it
}

// SortBy switches the repository to sorted delivery: all matches are
// fetched once, the named property is sorted ascending with duplicates
// dropped, and values are handed out one at a time. One-shot.
func (it *Iterator) SortBy(property string) *Iterator {
	if it.sortBy != "" {
		return it.fail("sort property is already set to %q", it.sortBy)
	}
	if property == "" {
		return it.fail("sort property must not be empty")
	}
	if !identPattern.MatchString(property) {
		return it.fail("sort property %q is not a valid identifier", property)
	}
	it.sortBy = property
	return it
}

// Repeats caps how many times each repository is visited in one run.
func (it *Iterator) Repeats(n int) *Iterator {
	if n <= 0 {
		return it.fail("repeats must be positive, got %d", n)
	}
	it.repeats = n
	return it
}

// QuotaUnaware disables the remote quota stop signal.
func (it *Iterator) QuotaUnaware() *Iterator {
	it.aware.Quota = false
	return it
}

// LifetimeUnaware disables the process lifetime stop signal.
func (it *Iterator) LifetimeUnaware() *Iterator {
	it.aware.Lifetime = false
	return it
}

// TimeoutUnaware disables the invocation timeout stop signal.
func (it *Iterator) TimeoutUnaware() *Iterator {
	it.aware.Timeout = false
	return it
}

// Over runs the sweep loop, invoking cb once per delivered candidate.
//
// Delivery is at-least-once and monotonically advancing per repository: a
// repository's cursor moves exactly through the values cb returns, and a
// crash between the final marker writes leaves some repositories advanced
// and others not. A repository whose query yields nothing is restarted:
// its cursor resets to the configured initial value and it is excluded
// from the rest of this run.
func (it *Iterator) Over(ctx context.Context, cb Callback) (*Summary, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.label == "" {
		return nil, fmt.Errorf("label is not set, call As first")
	}
	if !it.querySet {
		return nil, fmt.Errorf("query is not set, call By first")
	}
	if cb == nil {
		return nil, fmt.Errorf("callback must not be nil")
	}

	kickoff := time.Now()
	summary := &Summary{RunID: uuid.New().String(), Label: it.label}
	log := it.log.With("run", summary.RunID, "label", it.label)

	guard := budget.NewGuard(budget.Config{
		Oracle:         it.oracle,
		QuotaThreshold: it.opts.QuotaThreshold,
		Lifetime:       it.opts.Lifetime,
		Timeout:        it.opts.Timeout,
		Epoch:          it.opts.Epoch,
		Kickoff:        kickoff,
	})

	ids, err := it.resolver.Resolve(ctx, it.opts.Repositories)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repositories: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no repositories resolved from %v", it.opts.Repositories)
	}

	reason, err := guard.ShouldStop(ctx, it.aware)
	if err != nil {
		return nil, err
	}
	if reason != budget.ReasonNone {
		log.Info("budget exhausted before the sweep, nothing to do", "reason", string(reason))
		summary.StopReason = reason
		summary.Duration = time.Since(kickoff)
		return summary, nil
	}

	sessions := make(map[int64]*session, len(ids))
	for _, repo := range ids {
		before, err := it.progress.Read(ctx, it.label, repo, it.opts.Since)
		if err != nil {
			return nil, err
		}
		sessions[repo] = &session{before: before, start: before}
	}

	loopErr := it.sweep(ctx, log, guard, ids, sessions, cb, summary)

	// Markers are persisted even when the loop aborted: delivery is
	// at-least-once and already-advanced repositories keep their progress.
	for _, repo := range ids {
		s := sessions[repo]
		if s.before == s.start {
			continue
		}
		if err := it.progress.Write(ctx, it.label, repo, s.before); err != nil {
			if loopErr == nil {
				loopErr = err
			} else {
				log.Error("failed to persist marker after abort", "repository", repo, "error", err)
			}
			continue
		}
		summary.Persisted++
	}

	summary.Duration = time.Since(kickoff)
	if loopErr != nil {
		return summary, loopErr
	}
	log.Info("sweep finished",
		"invocations", summary.Invocations,
		"restarted", summary.Restarted,
		"persisted", summary.Persisted,
		"reason", string(summary.StopReason),
		"duration", summary.Duration)
	return summary, nil
}

// sweep runs the repository sweep loop until budgets run out or every
// repository is done.
func (it *Iterator) sweep(ctx context.Context, log *slog.Logger, guard *budget.Guard, ids []int64, sessions map[int64]*session, cb Callback, summary *Summary) error {
	for {
		reason, err := guard.ShouldStop(ctx, it.aware)
		if err != nil {
			return err
		}
		if reason != budget.ReasonNone {
			summary.StopReason = reason
			return nil
		}

		for _, repo := range ids {
			s := sessions[repo]
			if s.restarted || s.seen >= it.repeats {
				continue
			}

			reason, err := guard.ShouldStop(ctx, it.aware)
			if err != nil {
				return err
			}
			if reason != budget.ReasonNone {
				summary.StopReason = reason
				break
			}

			candidate, ok, err := it.next(ctx, s, repo)
			if err != nil {
				return err
			}
			if !ok {
				log.Debug("no more candidates, restarting",
					"repository", repo, "before", s.before)
				s.restarted = true
				s.before = it.opts.Since
				s.sorted = nil
				summary.Restarted++
			} else {
				after, err := cb(ctx, repo, candidate)
				if err != nil {
					return fmt.Errorf("callback failed for repository %d at %d: %w", repo, candidate, err)
				}
				log.Debug("candidate processed",
					"repository", repo, "candidate", candidate, "after", after)
				s.before = after
				summary.Invocations++
			}
			s.seen++
		}

		if summary.StopReason != budget.ReasonNone {
			return nil
		}

		done := true
		allRestarted := true
		for _, repo := range ids {
			s := sessions[repo]
			if !s.restarted {
				allRestarted = false
				if s.seen < it.repeats {
					done = false
				}
			}
		}
		if done || allRestarted {
			return nil
		}
	}
}

// next produces the repository's next candidate, or ok=false when the
// source is exhausted past the current cursor.
func (it *Iterator) next(ctx context.Context, s *session, repo int64) (int64, bool, error) {
	bound, err := it.query.Bind(map[string]int64{
		ParamBefore:     s.before,
		ParamRepository: repo,
	})
	if err != nil {
		return 0, false, err
	}

	if it.sortBy == "" {
		return it.fs.SelectOne(ctx, bound)
	}

	if s.sorted == nil {
		picked := bound
		picked.Pick = it.sortBy
		values, err := it.fs.SelectAll(ctx, picked)
		if err != nil {
			return 0, false, err
		}
		s.sorted = newSortedBuffer(values)
		it.log.Debug("sorted delivery materialized",
			"repository", repo, "property", it.sortBy, "values", s.sorted.remaining())
	}
	v, ok := s.sorted.next()
	return v, ok, nil
}
