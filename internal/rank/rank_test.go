package rank

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
)

func row(level, user string, value float64) model.RankedRow {
	return model.RankedRow{LevelID: level, UserID: user, Value: value}
}

func TestTopNDistinctUsers(t *testing.T) {
	input := []model.RankedRow{
		row("l1", "u1", 10),
		row("l1", "u1", 12),
		row("l1", "u2", 15),
		row("l1", "u3", 20),
		row("l1", "u4", 25),
	}

	out := TopN(input, 3)

	assert.Equal(t, []model.RankedRow{
		row("l1", "u1", 10),
		row("l1", "u2", 15),
		row("l1", "u3", 20),
	}, out)
}

func TestTopNSkipsMissingUser(t *testing.T) {
	input := []model.RankedRow{
		row("l1", "", 5),
		row("l1", "u1", 10),
		row("l1", "", 11),
		row("l1", "u2", 15),
	}

	out := TopN(input, 3)

	assert.Equal(t, []model.RankedRow{
		row("l1", "u1", 10),
		row("l1", "u2", 15),
	}, out)
}

func TestTopNPerLevel(t *testing.T) {
	input := []model.RankedRow{
		row("l1", "u1", 10),
		row("l2", "u1", 11),
		row("l1", "u2", 12),
		row("l2", "u2", 13),
		row("l1", "u3", 14),
		row("l2", "u3", 15),
	}

	out := TopN(input, 1)

	assert.Equal(t, []model.RankedRow{
		row("l1", "u1", 10),
		row("l2", "u1", 11),
	}, out)
}

func TestTopNZero(t *testing.T) {
	assert.Nil(t, TopN([]model.RankedRow{row("l1", "u1", 10)}, 0))
}

func TestTopNProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genInput := gen.SliceOf(gen.IntRange(0, 9)).Map(func(userIdx []int) []model.RankedRow {
		rows := make([]model.RankedRow, len(userIdx))
		for i, u := range userIdx {
			rows[i] = row("l1", fmt.Sprintf("u%d", u), float64(i))
		}
		return rows
	})

	properties.Property("output has at most n rows with distinct users", prop.ForAll(
		func(rows []model.RankedRow, n int) bool {
			out := TopN(rows, n)
			if len(out) > n {
				return false
			}
			seen := make(map[string]struct{})
			for _, r := range out {
				if r.UserID == "" {
					return false
				}
				if _, dup := seen[r.UserID]; dup {
					return false
				}
				seen[r.UserID] = struct{}{}
			}
			return true
		},
		genInput,
		gen.IntRange(1, 5),
	))

	properties.Property("output preserves first-occurrence order", prop.ForAll(
		func(rows []model.RankedRow, n int) bool {
			out := TopN(rows, n)
			// Each output row must appear in the input, and input positions
			// must be strictly increasing.
			pos := -1
			for _, r := range out {
				found := -1
				for i := pos + 1; i < len(rows); i++ {
					if rows[i] == r {
						found = i
						break
					}
				}
				if found < 0 {
					return false
				}
				pos = found
			}
			return true
		},
		genInput,
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
