// Package rank selects the top entries of an already ordered leaderboard
// candidate stream.
package rank

import (
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
)

// TopN returns, per level, the first n rows whose user has not appeared for
// that level yet, preserving the input order. Rows without a user are never
// accepted. The input is expected to be ordered by rank value already, so
// ties keep their original order.
func TopN(rows []model.RankedRow, n int) []model.RankedRow {
	if n <= 0 {
		return nil
	}

	seen := make(map[string]map[string]struct{})
	var out []model.RankedRow
	for _, row := range rows {
		if row.UserID == "" {
			continue
		}

		users := seen[row.LevelID]
		if users == nil {
			users = make(map[string]struct{}, n)
			seen[row.LevelID] = users
		}
		if len(users) >= n {
			continue
		}
		if _, dup := users[row.UserID]; dup {
			continue
		}

		users[row.UserID] = struct{}{}
		out = append(out, row)
	}
	return out
}
