package mash

import (
	"path/filepath"
	"sort"
)

// globPattern expands a filename pattern using *, ? and [...] only, per the
// glossary's glob-mark definition; brace expansion is not part of this
// shell's glob syntax, unlike the teacher's ExpandWildcards. Matches are
// returned lexicographically sorted, matching filepath.Glob's own order.
func globPattern(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}
