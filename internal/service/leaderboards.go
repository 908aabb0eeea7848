package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/admission"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/cooldown"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/crypto"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/logger"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/metrics"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/rank"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/store"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/sync"
)

var (
	ErrSubmissionsDisabled = errors.New("shift submissions are disabled")
	ErrSubmissionLocked    = errors.New("too many failed submission attempts")
	ErrInvalidPassword     = errors.New("invalid submit password")
	ErrLevelIDRequired     = errors.New("levelId is required")
	ErrUserIDRequired      = errors.New("userId is required")
	ErrShiftsRequired      = errors.New("shifts must be positive")
	ErrInvalidLagAbuse     = errors.New("lagAbuse must be 0 or 1")
)

// Leaderboard depth for timed runs and manual shift records.
const (
	runsTopN   = 3
	shiftsTopN = 1
)

const lagAbuseClean = 0

// Leaderboards exposes the read and refresh operations consumed by the HTTP
// layer.
type Leaderboards struct {
	store        *store.Store
	sync         *sync.Synchronizer
	gate         *cooldown.Gate
	limiter      *admission.Limiter
	passwordHash string
	logger       *logger.Logger
}

// New creates a Leaderboards service. passwordHash may be empty, which
// disables shift submissions.
func New(
	s *store.Store,
	syn *sync.Synchronizer,
	gate *cooldown.Gate,
	limiter *admission.Limiter,
	passwordHash string,
	l *logger.Logger,
) *Leaderboards {
	return &Leaderboards{
		store:        s,
		sync:         syn,
		gate:         gate,
		limiter:      limiter,
		passwordHash: passwordHash,
		logger:       l,
	}
}

// AllRankedRuns returns the top three distinct-user no-abuse runs per level.
func (s *Leaderboards) AllRankedRuns(ctx context.Context) ([]model.RankedRow, error) {
	rows, err := s.store.FastestRuns(ctx, lagAbuseClean, "")
	if err != nil {
		return nil, err
	}
	return rank.TopN(rows, runsTopN), nil
}

// AllRankedShifts returns the best no-abuse shift record per level.
func (s *Leaderboards) AllRankedShifts(ctx context.Context) ([]model.RankedRow, error) {
	rows, err := s.store.BestShifts(ctx, lagAbuseClean, "")
	if err != nil {
		return nil, err
	}
	return rank.TopN(rows, shiftsTopN), nil
}

// LevelRuns returns the ranked runs for one level, forcing an upstream
// refresh first unless the level is still inside its cooldown window. A
// failed refresh falls back to the stored state.
func (s *Leaderboards) LevelRuns(ctx context.Context, levelID string, now time.Time) ([]model.RankedRow, error) {
	if s.gate.Acquire(levelID, now) {
		if err := s.sync.RefreshLevel(ctx, levelID); err != nil {
			s.logger.Warn("on-demand refresh failed, serving cached runs",
				zap.String("level_id", levelID),
				zap.Error(err))
		}
	} else {
		metrics.LevelCacheHitsTotal.Inc()
	}

	rows, err := s.store.FastestRuns(ctx, lagAbuseClean, levelID)
	if err != nil {
		return nil, err
	}
	return rank.TopN(rows, runsTopN), nil
}

// AllUsers returns all stored user profiles.
func (s *Leaderboards) AllUsers(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// SubmitShift records a manual shift submission after checking the source's
// lockout state and the submit password. source identifies the submitting
// client for admission control.
func (s *Leaderboards) SubmitShift(ctx context.Context, source string, req model.ShiftRequest, now time.Time) error {
	if s.passwordHash == "" {
		return ErrSubmissionsDisabled
	}
	if !s.limiter.Allowed(source, now) {
		return ErrSubmissionLocked
	}

	match, err := crypto.VerifyPassword(req.Password, s.passwordHash)
	if err != nil {
		return fmt.Errorf("verifying submit password: %w", err)
	}
	if !match {
		s.limiter.Failure(source, now)
		return ErrInvalidPassword
	}
	s.limiter.Success(source)

	if req.LevelID == "" {
		return ErrLevelIDRequired
	}
	if req.UserID == "" {
		return ErrUserIDRequired
	}
	if req.Shifts <= 0 {
		return ErrShiftsRequired
	}
	if req.LagAbuse != 0 && req.LagAbuse != 1 {
		return ErrInvalidLagAbuse
	}

	date := req.Date
	if date == "" {
		date = now.Format(time.DateOnly)
	}

	err = s.store.InsertShift(ctx, model.Shift{
		LevelID:   req.LevelID,
		UserID:    req.UserID,
		LagAbuse:  req.LagAbuse,
		Shifts:    req.Shifts,
		Date:      date,
		VideoLink: req.VideoLink,
	})
	if err != nil {
		return err
	}

	metrics.ShiftSubmissionsTotal.Inc()
	return nil
}
