package utils

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// KeyChecker reports whether a shortlink key is already taken.
type KeyChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// SuggestKeys proposes up to max free alternatives to base: numeric
// suffixes first, then random ones. Keys that cannot be checked are
// skipped.
func SuggestKeys(ctx context.Context, checker KeyChecker, base string, max int) []string {
	if max <= 0 {
		max = 3
	}
	base = strings.ToLower(base)
	suggestions := make([]string, 0, max)
	seen := make(map[string]bool)

	try := func(candidate string) {
		if seen[candidate] || IsReservedKey(candidate) {
			return
		}
		seen[candidate] = true
		taken, err := checker.Exists(ctx, candidate)
		if err == nil && !taken {
			suggestions = append(suggestions, candidate)
		}
	}

	for i := 2; i <= max+5 && len(suggestions) < max; i++ {
		try(fmt.Sprintf("%s-%d", base, i))
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; attempt < 10 && len(suggestions) < max; attempt++ {
		try(fmt.Sprintf("%s-x%d", base, rng.Intn(90)+10))
	}
	return suggestions
}
