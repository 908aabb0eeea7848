package model

// Meta table ids tracked for staleness decisions.
const (
	MetaTableRuns  = "runs"
	MetaTableUsers = "users"
)

// Level represents a game level in the database. Levels are populated once
// from upstream and are immutable afterwards.
type Level struct {
	ID    string `json:"apiId"`
	Title string `json:"title"`
}

// User represents a runner profile mirrored from upstream.
type User struct {
	ID        string  `json:"userId"`
	Name      string  `json:"userName"`
	WebLink   string  `json:"webLink"`
	ColorHint *string `json:"color"`
}

// Run represents one verified upstream run. UserID is nil for runs submitted
// by guest players without an account.
type Run struct {
	ID          string
	LevelID     string
	UserID      *string
	LagAbuse    int
	TimeSeconds float64
	Date        string
	VideoLink   string
}

// Shift is a manually submitted shift-count record. Shifts are never fetched
// from upstream and are kept as an append-only log.
type Shift struct {
	LevelID   string `json:"levelId"`
	UserID    string `json:"userId"`
	LagAbuse  int    `json:"lagAbuse"`
	Shifts    int    `json:"shifts"`
	Date      string `json:"date"`
	VideoLink string `json:"videoLink"`
}

// Meta records the last update time of a mirrored table as unix seconds.
type Meta struct {
	TableID    string `json:"tableId"`
	LastUpdate int64  `json:"lastUpdate"`
}

// RankedRow is one leaderboard candidate produced by the store's ranking
// queries and consumed by the ranker. Value is the run time in seconds for
// timed runs and the shift count for shift records. UserID is empty when the
// stored row has no associated user.
type RankedRow struct {
	LevelID   string  `json:"levelId"`
	UserID    string  `json:"userId"`
	VideoLink string  `json:"videoLink"`
	Value     float64 `json:"value"`
}
