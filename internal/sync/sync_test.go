package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/logger"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/store"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/upstream"
)

// fakeFetcher serves canned upstream responses per level/user id.
type fakeFetcher struct {
	levels    []upstream.Level
	levelErr  error
	runs      map[string][]upstream.RawRun
	runErrs   map[string]error
	users     map[string]upstream.RawUser
	userErrs  map[string]error
	runCalls  map[string]int
	userCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		runs:     make(map[string][]upstream.RawRun),
		runErrs:  make(map[string]error),
		users:    make(map[string]upstream.RawUser),
		userErrs: make(map[string]error),
		runCalls: make(map[string]int),
	}
}

func (f *fakeFetcher) FetchLevels(ctx context.Context) ([]upstream.Level, error) {
	return f.levels, f.levelErr
}

func (f *fakeFetcher) FetchVerifiedRuns(ctx context.Context, levelID string) ([]upstream.RawRun, error) {
	f.runCalls[levelID]++
	if err := f.runErrs[levelID]; err != nil {
		return nil, err
	}
	return f.runs[levelID], nil
}

func (f *fakeFetcher) FetchUser(ctx context.Context, userID string) (upstream.RawUser, error) {
	f.userCalls++
	if err := f.userErrs[userID]; err != nil {
		return upstream.RawUser{}, err
	}
	return f.users[userID], nil
}

func verifiedRun(id, level, user, lagAbuse string, seconds float64) upstream.RawRun {
	var run upstream.RawRun
	run.ID = id
	run.Level = level
	run.Status.Status = "verified"
	run.Players = []struct {
		ID string `json:"id"`
	}{{ID: user}}
	run.Times.PrimaryT = seconds
	run.Date = "2024-03-01"
	run.Values = map[string]string{"r8rg5zrn": lagAbuse}
	return run
}

func newTestSetup(t *testing.T) (*store.Store, *fakeFetcher, *Synchronizer) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db3"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := newFakeFetcher()
	return s, f, New(s, f, logger.NewNop(), 24*time.Hour)
}

func seedLevels(t *testing.T, s *store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.UpsertLevel(context.Background(), model.Level{ID: id, Title: "Level " + id}))
	}
}

func TestStale(t *testing.T) {
	now := time.Now()
	ttl := 24 * time.Hour
	meta := func(last int64) []model.Meta {
		return []model.Meta{{TableID: model.MetaTableRuns, LastUpdate: last}}
	}

	assert.True(t, Stale(nil, model.MetaTableRuns, now, ttl), "missing meta row is stale")
	assert.True(t, Stale(meta(now.Unix()-int64(ttl.Seconds())-1), model.MetaTableRuns, now, ttl))
	assert.False(t, Stale(meta(now.Unix()-int64(ttl.Seconds())+1), model.MetaTableRuns, now, ttl))
	assert.True(t, Stale(meta(now.Unix()), model.MetaTableUsers, now, ttl), "other table has no row")
}

func TestRefreshAllRunsPartialFailure(t *testing.T) {
	s, f, syn := newTestSetup(t)
	ctx := context.Background()

	levels := []string{"l1", "l2", "l3", "l4", "l5"}
	seedLevels(t, s, levels...)
	for i, id := range levels {
		f.runs[id] = []upstream.RawRun{verifiedRun("r-"+id, id, "u1", "5q8ze9gq", float64(10+i))}
	}
	f.runErrs["l3"] = &upstream.TransportError{Request: "runs?level=l3", Err: context.DeadlineExceeded}

	require.NoError(t, syn.RefreshAllRuns(ctx), "one failed level must not fail the batch")

	rows, err := s.FastestRuns(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.NotEqual(t, "l3", row.LevelID)
	}
}

func TestRefreshAllRunsAllFailedSkipsCommit(t *testing.T) {
	s, f, syn := newTestSetup(t)
	ctx := context.Background()

	seedLevels(t, s, "l1")
	f.runErrs["l1"] = &upstream.RemoteError{Status: 503, Request: "runs?level=l1"}

	require.NoError(t, syn.RefreshAllRuns(ctx))

	meta, err := s.ListMeta(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta, "an empty batch must not touch the store")
}

func TestRefreshDeletesDeverifiedRuns(t *testing.T) {
	s, f, syn := newTestSetup(t)
	ctx := context.Background()

	seedLevels(t, s, "l1")
	f.runs["l1"] = []upstream.RawRun{
		verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10),
		verifiedRun("r2", "l1", "u2", "5q8ze9gq", 12),
	}
	require.NoError(t, syn.RefreshAllRuns(ctx))

	// r2 lost its verified status upstream.
	f.runs["l1"] = f.runs["l1"][:1]
	require.NoError(t, syn.RefreshAllRuns(ctx))

	rows, err := s.FastestRuns(ctx, 0, "l1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].UserID)
}

func TestRefreshLevelReportsFetchFailure(t *testing.T) {
	_, f, syn := newTestSetup(t)

	f.runErrs["l1"] = &upstream.TransportError{Request: "runs?level=l1", Err: context.DeadlineExceeded}

	err := syn.RefreshLevel(context.Background(), "l1")
	var transportErr *upstream.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestRefreshAllUsers(t *testing.T) {
	s, f, syn := newTestSetup(t)
	ctx := context.Background()

	seedLevels(t, s, "l1")
	f.runs["l1"] = []upstream.RawRun{
		verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10),
		verifiedRun("r2", "l1", "u2", "5q8ze9gq", 12),
	}
	require.NoError(t, syn.RefreshAllRuns(ctx))

	u1 := upstream.RawUser{ID: "u1", WebLink: "https://example.com/u1"}
	u1.Names.International = "First"
	f.users["u1"] = u1
	f.userErrs["u2"] = &upstream.RemoteError{Status: 404, Request: "users/u2"}

	require.NoError(t, syn.RefreshAllUsers(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "First", users[0].Name)
}

func TestInitializePopulatesLevelsOnce(t *testing.T) {
	s, f, syn := newTestSetup(t)
	ctx := context.Background()

	f.levels = []upstream.Level{{ID: "l1", Name: "Prologue"}, {ID: "l2", Name: "Finale"}}
	f.runs["l1"] = []upstream.RawRun{verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10)}
	u1 := upstream.RawUser{ID: "u1"}
	u1.Names.International = "First"
	f.users["u1"] = u1

	require.NoError(t, syn.Initialize(ctx))

	count, err := s.CountLevels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A fresh sync just happened, so a second Initialize must not refetch.
	calls := f.runCalls["l1"]
	require.NoError(t, syn.Initialize(ctx))
	assert.Equal(t, calls, f.runCalls["l1"])
}

func TestNormalizeRunSentinelMapping(t *testing.T) {
	clean, err := normalizeRun(verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10))
	require.NoError(t, err)
	assert.Equal(t, 0, clean.LagAbuse)

	abusive, err := normalizeRun(verifiedRun("r2", "l1", "u1", "21dd4e41", 10))
	require.NoError(t, err)
	assert.Equal(t, 1, abusive.LagAbuse)

	_, err = normalizeRun(verifiedRun("r3", "l1", "u1", "bogus", 10))
	require.ErrorIs(t, err, ErrUnknownLagAbuseValue)

	_, err = normalizeRun(verifiedRun("r4", "l1", "u1", "", 10))
	require.ErrorIs(t, err, ErrUnknownLagAbuseValue, "a missing sentinel is not trusted either")
}

func TestNormalizeRunDateFallback(t *testing.T) {
	raw := verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10)
	raw.Date = ""
	raw.Submitted = "2024-03-05T12:34:56Z"

	run, err := normalizeRun(raw)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", run.Date)

	raw.Date = "2024-03-01"
	run, err = normalizeRun(raw)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", run.Date)
}

func TestNormalizeRunVideoLink(t *testing.T) {
	raw := verifiedRun("r1", "l1", "u1", "5q8ze9gq", 10)

	run, err := normalizeRun(raw)
	require.NoError(t, err)
	assert.Equal(t, "", run.VideoLink)

	raw.Videos.Text = "youtu.be/abc123"
	run, err = normalizeRun(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/abc123", run.VideoLink)

	raw.Videos.Links = []struct {
		URI string `json:"uri"`
	}{{URI: "https://www.twitch.tv/videos/xyz"}}
	run, err = normalizeRun(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://www.twitch.tv/videos/xyz", run.VideoLink)
}

func TestNormalizeRunGuestPlayer(t *testing.T) {
	raw := verifiedRun("r1", "l1", "", "5q8ze9gq", 10)
	raw.Players = nil

	run, err := normalizeRun(raw)
	require.NoError(t, err)
	assert.Nil(t, run.UserID)
}
