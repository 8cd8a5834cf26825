// Package artifacts checks that a built workspace contains the files a
// template promises, using glob patterns with ** support.
package artifacts

import (
	"fmt"
	"sort"

	"github.com/templar-ci/templar/internal/engine"
)

// Inventory is the outcome of matching expected artifact patterns
// against a workspace tree.
type Inventory struct {
	// Found lists the workspace-relative files matched by at least one
	// pattern, sorted and deduplicated.
	Found []string
	// Missing lists the patterns that matched nothing.
	Missing []string
}

// OK reports whether every expected pattern matched at least one file.
func (inv Inventory) OK() bool {
	return len(inv.Missing) == 0
}

// Check walks root once and matches each pattern against every regular
// file. Each pattern must match at least one file.
func Check(root string, patterns []string) (Inventory, error) {
	files, err := engine.ListFiles(root)
	if err != nil {
		return Inventory{}, fmt.Errorf("inventory workspace %s: %w", root, err)
	}
	return Match(files, patterns), nil
}

// Match runs the pattern check against an already collected file list.
func Match(files, patterns []string) Inventory {
	var inv Inventory
	found := make(map[string]bool)

	for _, pattern := range patterns {
		matched := false
		for _, f := range files {
			if MatchGlob(f, pattern) {
				matched = true
				found[f] = true
			}
		}
		if !matched {
			inv.Missing = append(inv.Missing, pattern)
		}
	}

	inv.Found = make([]string, 0, len(found))
	for f := range found {
		inv.Found = append(inv.Found, f)
	}
	sort.Strings(inv.Found)
	return inv
}
