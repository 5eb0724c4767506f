package corpus

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/yargevad/filepathx"
)

// ErrNoMatch is returned when a corpus pattern matches no file.
var ErrNoMatch = errors.New("pattern matched no corpus file")

// ExpandPaths resolves corpus arguments into file paths. Patterns with glob
// metacharacters are expanded, "**" included; plain paths must name an
// existing regular file. Duplicates keep their first position.
func ExpandPaths(patterns []string) ([]string, error) {
	var out []string

	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			info, err := os.Stat(pattern)
			if err != nil {
				return nil, fmt.Errorf("corpus %q: %w", pattern, err)
			}

			if info.IsDir() {
				return nil, fmt.Errorf("corpus %q is a directory", pattern)
			}

			add(pattern)

			continue
		}

		matches, err := filepathx.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}

		var files []string

		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				files = append(files, m)
			}
		}

		if len(files) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, pattern)
		}

		sort.Strings(files)

		for _, f := range files {
			add(f)
		}
	}

	return out, nil
}
