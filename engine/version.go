package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// parseVersion splits a "MAJOR.MINOR.PATCH" string into its numeric triple.
// A malformed version is treated as 0.0.0, since the engine itself is the
// only writer of these strings.
func parseVersion(v string) [3]int {
	parts := strings.SplitN(v, ".", 3)
	var out [3]int
	for i := 0; i < 3 && i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

// IsVersionLess reports whether a < b under numeric-triple comparison.
func IsVersionLess(a, b string) bool {
	pa, pb := parseVersion(a), parseVersion(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

// GenerateNextVersion bumps the patch component of v. Major/minor bumps are
// reserved for future use and are never produced by the engine itself.
func GenerateNextVersion(v string) string {
	p := parseVersion(v)
	p[2]++
	return fmt.Sprintf("%d.%d.%d", p[0], p[1], p[2])
}
