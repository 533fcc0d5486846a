package version

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// Compare compares two dotted versions numerically and returns -1, 0 or +1.
// A leading "v" and any pre-release or build suffix are ignored; missing or
// non-numeric parts count as zero.
func Compare(a, b string) int {
	pa, pb := parts(a), parts(b)

	for i := range max(len(pa), len(pb)) {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}

		if i < len(pb) {
			y = pb[i]
		}

		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}

	return 0
}

func parts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}

	if v == "" {
		return nil
	}

	fields := strings.Split(v, ".")
	result := make([]int, len(fields))

	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err == nil {
			result[i] = n
		}
	}

	return result
}
