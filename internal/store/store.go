package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
)

// Store owns all persisted leaderboard state. Every mutation goes through it,
// either directly or via RunInTransaction.
type Store struct {
	db *sql.DB
}

// schemaStatements create the five tables and the meta triggers. The triggers
// keep meta.lastUpdate current on every insert into users/runs so staleness
// decisions never depend on callers remembering to touch meta themselves.
var schemaStatements = []struct {
	name string
	sql  string
}{
	{"levels", `
		CREATE TABLE IF NOT EXISTS levels (
			apiId TEXT UNIQUE,
			title TEXT,
			PRIMARY KEY("apiId")
		)`},
	{"runs", `
		CREATE TABLE IF NOT EXISTS runs (
			apiId TEXT UNIQUE,
			levelId TEXT,
			userId TEXT,
			lagAbuse INTEGER,
			time REAL,
			date TEXT,
			videoLink TEXT,
			PRIMARY KEY("apiId")
		)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			userId TEXT UNIQUE,
			userName TEXT,
			webLink TEXT,
			color TEXT,
			PRIMARY KEY("userId")
		)`},
	{"shifts", `
		CREATE TABLE IF NOT EXISTS shifts (
			levelId TEXT,
			userId TEXT,
			lagAbuse INTEGER,
			shifts INTEGER,
			date TEXT,
			videoLink TEXT
		)`},
	{"meta", `
		CREATE TABLE IF NOT EXISTS meta (
			tableId TEXT UNIQUE,
			lastUpdate NUMBER,
			PRIMARY KEY("tableId")
		)`},
	{"lastUpdateUsers trigger", `
		CREATE TRIGGER IF NOT EXISTS lastUpdateUsers
			AFTER INSERT ON users
			BEGIN
				INSERT OR REPLACE INTO meta (tableId, lastUpdate)
				VALUES ('users', unixepoch('now'));
			END`},
	{"lastUpdateRuns trigger", `
		CREATE TRIGGER IF NOT EXISTS lastUpdateRuns
			AFTER INSERT ON runs
			BEGIN
				INSERT OR REPLACE INTO meta (tableId, lastUpdate)
				VALUES ('runs', unixepoch('now'));
			END`},
}

// Open opens the SQLite database file at path and prepares the schema.
// Any failure here is fatal for the process: the server must not start on an
// unreadable or corrupted database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// SQLite allows a single writer; serializing the pool avoids SQLITE_BUSY
	// between on-demand refreshes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database %q is unreadable: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("creating %s: %w", stmt.name, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTransaction runs fn inside a write transaction. All writes made
// through the Tx variants are committed together when fn returns nil and
// rolled back when it returns an error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const (
	upsertLevelQuery = `INSERT OR REPLACE INTO levels (apiId, title) VALUES (?, ?)`
	upsertUserQuery  = `INSERT OR REPLACE INTO users (userId, userName, webLink, color) VALUES (?, ?, ?, ?)`
	upsertRunQuery   = `INSERT OR REPLACE INTO runs (apiId, levelId, userId, lagAbuse, time, date, videoLink) VALUES (?, ?, ?, ?, ?, ?, ?)`
	deleteRunQuery   = `DELETE FROM runs WHERE apiId = ?`
	insertShiftQuery = `INSERT INTO shifts (levelId, userId, lagAbuse, shifts, date, videoLink) VALUES (?, ?, ?, ?, ?, ?)`
)

// UpsertLevel inserts or replaces a level.
func (s *Store) UpsertLevel(ctx context.Context, level model.Level) error {
	_, err := s.db.ExecContext(ctx, upsertLevelQuery, level.ID, level.Title)
	return err
}

// UpsertLevelTx inserts or replaces a level within the given transaction.
func (s *Store) UpsertLevelTx(ctx context.Context, tx *sql.Tx, level model.Level) error {
	_, err := tx.ExecContext(ctx, upsertLevelQuery, level.ID, level.Title)
	return err
}

// UpsertUser inserts or replaces a user profile.
func (s *Store) UpsertUser(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx, upsertUserQuery, user.ID, user.Name, user.WebLink, user.ColorHint)
	return err
}

// UpsertUserTx inserts or replaces a user profile within the given transaction.
func (s *Store) UpsertUserTx(ctx context.Context, tx *sql.Tx, user model.User) error {
	_, err := tx.ExecContext(ctx, upsertUserQuery, user.ID, user.Name, user.WebLink, user.ColorHint)
	return err
}

// UpsertRun inserts or replaces a run.
func (s *Store) UpsertRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx, upsertRunQuery,
		run.ID, run.LevelID, run.UserID, run.LagAbuse, run.TimeSeconds, run.Date, run.VideoLink)
	return err
}

// UpsertRunTx inserts or replaces a run within the given transaction.
func (s *Store) UpsertRunTx(ctx context.Context, tx *sql.Tx, run model.Run) error {
	_, err := tx.ExecContext(ctx, upsertRunQuery,
		run.ID, run.LevelID, run.UserID, run.LagAbuse, run.TimeSeconds, run.Date, run.VideoLink)
	return err
}

// DeleteRun removes a run by its upstream id.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, deleteRunQuery, id)
	return err
}

// DeleteRunTx removes a run by its upstream id within the given transaction.
func (s *Store) DeleteRunTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, deleteRunQuery, id)
	return err
}

// InsertShift appends a manual shift record.
func (s *Store) InsertShift(ctx context.Context, shift model.Shift) error {
	_, err := s.db.ExecContext(ctx, insertShiftQuery,
		shift.LevelID, shift.UserID, shift.LagAbuse, shift.Shifts, shift.Date, shift.VideoLink)
	return err
}

// CountLevels returns the number of stored levels.
func (s *Store) CountLevels(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM levels`).Scan(&count)
	return count, err
}

// ListLevels returns all stored levels.
func (s *Store) ListLevels(ctx context.Context) ([]model.Level, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT apiId, title FROM levels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []model.Level
	for rows.Next() {
		var l model.Level
		if err := rows.Scan(&l.ID, &l.Title); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// ListUsers returns all stored user profiles.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT userId, userName, webLink, color FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var color sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &u.WebLink, &color); err != nil {
			return nil, err
		}
		if color.Valid {
			u.ColorHint = &color.String
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListMeta returns the last-update timestamps for all tracked tables.
func (s *Store) ListMeta(ctx context.Context) ([]model.Meta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tableId, lastUpdate FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meta []model.Meta
	for rows.Next() {
		var m model.Meta
		if err := rows.Scan(&m.TableID, &m.LastUpdate); err != nil {
			return nil, err
		}
		meta = append(meta, m)
	}
	return meta, rows.Err()
}

// ListUserIDsWithRuns returns the distinct user ids referenced by any run.
func (s *Store) ListUserIDsWithRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT userId FROM runs WHERE userId IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunIDsForLevelTx returns the set of stored run ids for one level, read
// within the given transaction so the pruning diff sees a consistent state.
func (s *Store) RunIDsForLevelTx(ctx context.Context, tx *sql.Tx, levelID string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT apiId FROM runs WHERE levelId = ?`, levelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// FastestRuns returns leaderboard candidates for timed runs with the given
// lag-abuse flag, ordered by time ascending. An empty levelID means all
// levels.
func (s *Store) FastestRuns(ctx context.Context, lagAbuse int, levelID string) ([]model.RankedRow, error) {
	query := `SELECT levelId, userId, videoLink, time FROM runs WHERE lagAbuse = ?`
	args := []any{lagAbuse}
	if levelID != "" {
		query += ` AND levelId = ?`
		args = append(args, levelID)
	}
	query += ` ORDER BY time ASC`

	return s.queryRankedRows(ctx, query, args...)
}

// BestShifts returns leaderboard candidates for manual shift records with the
// given lag-abuse flag, ordered by shift count ascending. Shift rows with an
// unset lag-abuse flag are treated as clean. An empty levelID means all
// levels.
func (s *Store) BestShifts(ctx context.Context, lagAbuse int, levelID string) ([]model.RankedRow, error) {
	query := `SELECT levelId, userId, videoLink, shifts FROM shifts WHERE (lagAbuse = ? OR lagAbuse IS NULL)`
	args := []any{lagAbuse}
	if levelID != "" {
		query += ` AND levelId = ?`
		args = append(args, levelID)
	}
	query += ` ORDER BY shifts ASC`

	return s.queryRankedRows(ctx, query, args...)
}

func (s *Store) queryRankedRows(ctx context.Context, query string, args ...any) ([]model.RankedRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.RankedRow
	for rows.Next() {
		var row model.RankedRow
		var userID sql.NullString
		if err := rows.Scan(&row.LevelID, &userID, &row.VideoLink, &row.Value); err != nil {
			return nil, err
		}
		row.UserID = userID.String
		result = append(result, row)
	}
	return result, rows.Err()
}
