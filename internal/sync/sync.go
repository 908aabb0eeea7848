// Package sync keeps the local mirror in step with the upstream leaderboard
// API: level population at first start, staleness-driven full refreshes, and
// on-demand single-level refreshes.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/logger"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/metrics"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/store"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/upstream"
)

// Custom-field values of the upstream lag-abuse variable. Exactly these two
// sentinels are trusted; anything else rejects the run.
const (
	lagAbuseVariable = "r8rg5zrn"
	lagAbuseClean    = "5q8ze9gq"
	lagAbuseUsed     = "21dd4e41"
)

const statusVerified = "verified"

// ErrUnknownLagAbuseValue reports a lag-abuse custom-field value outside the
// two known sentinels.
var ErrUnknownLagAbuseValue = errors.New("unknown lag abuse value")

// Fetcher is the upstream surface the synchronizer depends on.
type Fetcher interface {
	FetchLevels(ctx context.Context) ([]upstream.Level, error)
	FetchVerifiedRuns(ctx context.Context, levelID string) ([]upstream.RawRun, error)
	FetchUser(ctx context.Context, userID string) (upstream.RawUser, error)
}

// Synchronizer orchestrates batch refreshes of runs and users. Per-entity
// fetches run concurrently and fail independently; all successful results of
// one batch are committed in a single transaction.
type Synchronizer struct {
	store  *store.Store
	client Fetcher
	logger *logger.Logger
	ttl    time.Duration
}

// New creates a Synchronizer. ttl is the staleness window consulted by
// Initialize.
func New(s *store.Store, client Fetcher, l *logger.Logger, ttl time.Duration) *Synchronizer {
	return &Synchronizer{
		store:  s,
		client: client,
		logger: l,
		ttl:    ttl,
	}
}

// Stale reports whether the tracked table is due for a full refresh at time
// now. A table without a meta row has never been populated and is always
// stale.
func Stale(meta []model.Meta, tableID string, now time.Time, ttl time.Duration) bool {
	for _, m := range meta {
		if m.TableID == tableID {
			return now.Unix()-m.LastUpdate > int64(ttl/time.Second)
		}
	}
	return true
}

// Initialize brings the mirror up at process start: it populates levels on
// first run and refreshes runs and users when their meta timestamp has gone
// stale. Store failures abort startup; individual fetch failures do not.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	count, err := s.store.CountLevels(ctx)
	if err != nil {
		return fmt.Errorf("counting levels: %w", err)
	}

	if count == 0 {
		if err := s.populateLevels(ctx); err != nil {
			return err
		}
	}

	meta, err := s.store.ListMeta(ctx)
	if err != nil {
		return fmt.Errorf("reading meta: %w", err)
	}

	now := time.Now()
	if Stale(meta, model.MetaTableRuns, now, s.ttl) {
		if err := s.RefreshAllRuns(ctx); err != nil {
			return err
		}
	}
	if Stale(meta, model.MetaTableUsers, now, s.ttl) {
		if err := s.RefreshAllUsers(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) populateLevels(ctx context.Context) error {
	s.logger.Info("populating database with levels")

	levels, err := s.client.FetchLevels(ctx)
	if err != nil {
		return fmt.Errorf("fetching levels: %w", err)
	}

	return s.store.RunInTransaction(ctx, func(tx *sql.Tx) error {
		for _, level := range levels {
			if err := s.store.UpsertLevelTx(ctx, tx, model.Level{ID: level.ID, Title: level.Name}); err != nil {
				return err
			}
		}
		return nil
	})
}

type levelOutcome struct {
	levelID string
	runs    []model.Run
	err     error
}

// RefreshAllRuns re-fetches the verified runs of every known level. Each
// level is fetched in its own goroutine; a failed level contributes no
// writes and is retried on the next scheduled pass. The returned error is
// nil unless the store itself fails.
func (s *Synchronizer) RefreshAllRuns(ctx context.Context) error {
	levels, err := s.store.ListLevels(ctx)
	if err != nil {
		return fmt.Errorf("listing levels: %w", err)
	}

	outcomes := make([]levelOutcome, len(levels))
	var wg stdsync.WaitGroup
	for i, level := range levels {
		wg.Add(1)
		go func(i int, levelID string) {
			defer wg.Done()
			runs, err := s.fetchLevelRuns(ctx, levelID)
			outcomes[i] = levelOutcome{levelID: levelID, runs: runs, err: err}
		}(i, level.ID)
	}
	wg.Wait()

	return s.applyRunOutcomes(ctx, outcomes)
}

// RefreshLevel re-fetches the verified runs of a single level and commits
// the result. Unlike the batch refresh it reports the fetch failure, so the
// on-demand caller can fall back to cached rows.
func (s *Synchronizer) RefreshLevel(ctx context.Context, levelID string) error {
	runs, err := s.fetchLevelRuns(ctx, levelID)
	if err != nil {
		return err
	}
	return s.applyRunOutcomes(ctx, []levelOutcome{{levelID: levelID, runs: runs}})
}

func (s *Synchronizer) fetchLevelRuns(ctx context.Context, levelID string) ([]model.Run, error) {
	raw, err := s.client.FetchVerifiedRuns(ctx, levelID)
	if err != nil {
		metrics.UpstreamFetchErrorsTotal.Inc()
		return nil, err
	}
	metrics.UpstreamFetchesTotal.Inc()

	runs := make([]model.Run, 0, len(raw))
	for _, rr := range raw {
		if rr.Status.Status != statusVerified {
			continue
		}
		run, err := normalizeRun(rr)
		if err != nil {
			s.logger.Warn("rejecting run",
				zap.String("run_id", rr.ID),
				zap.String("level_id", levelID),
				zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// applyRunOutcomes commits every successful level's runs in one transaction.
// Stored runs no longer among a level's verified set are deleted; that is
// how de-verified runs disappear from the leaderboards.
func (s *Synchronizer) applyRunOutcomes(ctx context.Context, outcomes []levelOutcome) error {
	succeeded := 0
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("level refresh failed, keeping cached runs",
				zap.String("level_id", o.levelID),
				zap.Error(o.err))
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		s.logger.Warn("no level fetch succeeded, skipping commit")
		return nil
	}

	err := s.store.RunInTransaction(ctx, func(tx *sql.Tx) error {
		for _, o := range outcomes {
			if o.err != nil {
				continue
			}

			stored, err := s.store.RunIDsForLevelTx(ctx, tx, o.levelID)
			if err != nil {
				return err
			}

			current := make(map[string]struct{}, len(o.runs))
			for _, run := range o.runs {
				if err := s.store.UpsertRunTx(ctx, tx, run); err != nil {
					return err
				}
				current[run.ID] = struct{}{}
			}

			for id := range stored {
				if _, verified := current[id]; verified {
					continue
				}
				if err := s.store.DeleteRunTx(ctx, tx, id); err != nil {
					return err
				}
				metrics.RunsDeletedTotal.Inc()
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing run batch: %w", err)
	}

	metrics.SyncBatchesTotal.Inc()
	s.logger.Info("run batch committed",
		zap.Int("levels_refreshed", succeeded),
		zap.Int("levels_failed", len(outcomes)-succeeded))
	return nil
}

type userOutcome struct {
	userID string
	user   model.User
	err    error
}

// RefreshAllUsers re-fetches the profile of every user referenced by a
// stored run, with the same concurrent fan-out and partial-failure handling
// as RefreshAllRuns.
func (s *Synchronizer) RefreshAllUsers(ctx context.Context) error {
	userIDs, err := s.store.ListUserIDsWithRuns(ctx)
	if err != nil {
		return fmt.Errorf("listing user ids: %w", err)
	}

	outcomes := make([]userOutcome, len(userIDs))
	var wg stdsync.WaitGroup
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			raw, err := s.client.FetchUser(ctx, userID)
			if err != nil {
				metrics.UpstreamFetchErrorsTotal.Inc()
				outcomes[i] = userOutcome{userID: userID, err: err}
				return
			}
			metrics.UpstreamFetchesTotal.Inc()
			outcomes[i] = userOutcome{userID: userID, user: normalizeUser(raw)}
		}(i, userID)
	}
	wg.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("user refresh failed, keeping cached profile",
				zap.String("user_id", o.userID),
				zap.Error(o.err))
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		if len(outcomes) > 0 {
			s.logger.Warn("no user fetch succeeded, skipping commit")
		}
		return nil
	}

	err = s.store.RunInTransaction(ctx, func(tx *sql.Tx) error {
		for _, o := range outcomes {
			if o.err != nil {
				continue
			}
			if err := s.store.UpsertUserTx(ctx, tx, o.user); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing user batch: %w", err)
	}

	metrics.SyncBatchesTotal.Inc()
	s.logger.Info("user batch committed",
		zap.Int("users_refreshed", succeeded),
		zap.Int("users_failed", len(outcomes)-succeeded))
	return nil
}

// normalizeRun maps one upstream run record onto a Run row.
func normalizeRun(raw upstream.RawRun) (model.Run, error) {
	run := model.Run{
		ID:          raw.ID,
		LevelID:     raw.Level,
		TimeSeconds: raw.Times.PrimaryT,
	}

	if len(raw.Players) > 0 && raw.Players[0].ID != "" {
		id := raw.Players[0].ID
		run.UserID = &id
	}

	switch raw.Values[lagAbuseVariable] {
	case lagAbuseClean:
		run.LagAbuse = 0
	case lagAbuseUsed:
		run.LagAbuse = 1
	default:
		return model.Run{}, fmt.Errorf("%w: %q", ErrUnknownLagAbuseValue, raw.Values[lagAbuseVariable])
	}

	run.Date = raw.Date
	if run.Date == "" {
		run.Date = raw.Submitted
		if i := strings.Index(raw.Submitted, "T"); i >= 0 {
			run.Date = raw.Submitted[:i]
		}
	}

	run.VideoLink = videoLink(raw)
	return run, nil
}

// videoLink picks the first attached video link, falling back to a URL built
// from the free-text video field.
func videoLink(raw upstream.RawRun) string {
	if len(raw.Videos.Links) > 0 {
		return raw.Videos.Links[0].URI
	}
	if text := strings.TrimSpace(raw.Videos.Text); text != "" {
		if !strings.Contains(text, "://") {
			return "https://" + text
		}
		return text
	}
	return ""
}

// normalizeUser maps one upstream user profile onto a User row.
func normalizeUser(raw upstream.RawUser) model.User {
	return model.User{
		ID:        raw.ID,
		Name:      raw.Names.International,
		WebLink:   raw.WebLink,
		ColorHint: raw.NameStyle.ColorHint(),
	}
}
