// Package testutil provides corpus fixtures and skip helpers for tests.
//
// Skip helpers call t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestLargeCorpus(t *testing.T) {
//	    path := testutil.RequireCorpus(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CorpusEnv names the environment variable pointing at a large real corpus.
const CorpusEnv = "GOBPE_TEST_CORPUS"

// ScenarioCorpus is the small corpus used across packages: five words whose
// first merges are (e, s), (es, t) and (est, </w>).
const ScenarioCorpus = "low lower lowest widest newest\n"

// WriteCorpus writes lines to dir/name, one per line, and returns the path.
// Parent directories are created.
func WriteCorpus(tb testing.TB, dir, name string, lines ...string) string {
	tb.Helper()

	path := filepath.Join(dir, name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create corpus dir: %v", err)
	}

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write corpus %q: %v", path, err)
	}

	return path
}

// ReadLines returns the lines of the file at path without the trailing
// newline.
func ReadLines(tb testing.TB, path string) []string {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read %q: %v", path, err)
	}

	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

// RequireCorpus skips the test unless CorpusEnv names a readable file and
// returns that path.
func RequireCorpus(tb testing.TB) string {
	tb.Helper()

	p := os.Getenv(CorpusEnv)
	if p == "" {
		tb.Skipf("no large corpus configured; set %s to a text file", CorpusEnv)
		return ""
	}

	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		tb.Skipf("corpus not readable at %s=%q", CorpusEnv, p)
		return ""
	}

	return p
}
