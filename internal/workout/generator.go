// Package workout derives the deterministic daily exercise list for a tier.
package workout

import (
	"strconv"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
)

const (
	baseCount   = 4
	stride      = 7
	maxAttempts = 100
)

// Seed turns a calendar date into the integer formed by its YYYYMMDD digits.
func Seed(date time.Time) int {
	seed, _ := strconv.Atoi(date.Format("20060102"))
	return seed
}

// Daily returns today's exercises for the tier. The same tier and calendar date
// always produce the same ordered list; only the date's year, month and day are used.
func Daily(tier catalog.Tier, date time.Time) []catalog.Exercise {
	return pick(catalog.Pool(tier), Seed(date))
}

func pick(pool []catalog.Exercise, seed int) []catalog.Exercise {
	if len(pool) == 0 {
		return nil
	}

	target := baseCount + (seed%10)%2
	used := make(map[int]struct{}, target)
	selected := make([]catalog.Exercise, 0, target)

	collisions := 0
	for attempt := 0; len(selected) < target && attempt < maxAttempts; attempt++ {
		idx := (seed + len(selected)*stride + collisions) % len(pool)
		if _, dup := used[idx]; dup {
			collisions++
			continue
		}
		used[idx] = struct{}{}
		selected = append(selected, pool[idx])
	}
	return selected
}
