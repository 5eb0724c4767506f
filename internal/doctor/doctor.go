// Package doctor provides preflight checks for gobpe runs.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// sniffBytes is how much of each corpus is read to check its encoding.
const sniffBytes = 64 * 1024

// CheckFunc returns a short description of a healthy component or an error.
type CheckFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Settings validates the loaded configuration.
	Settings func() error
	// Workers reports the resolved worker count.
	Workers CheckFunc
	// Artifacts opens and verifies the vocabulary directory.
	Artifacts CheckFunc
	// SkipArtifacts skips the artifact check (nothing learned yet).
	SkipArtifacts bool
	// Corpora is the list of corpus paths to verify on disk.
	Corpora []string
	// OutDir must be creatable when set.
	OutDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- configuration ----------------------------------------------------
	if cfg.Settings != nil {
		if err := cfg.Settings(); err != nil {
			res.fail(fmt.Sprintf("config: %v", err))
			fmt.Fprintf(w, "%s config: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s config: ok\n", PassMark)
		}
	}

	if cfg.Workers != nil {
		runCheck(&res, w, "workers", cfg.Workers)
	}

	// ---- artifacts --------------------------------------------------------
	switch {
	case cfg.SkipArtifacts:
		fmt.Fprintf(w, "%s artifacts: skipped\n", PassMark)
	case cfg.Artifacts != nil:
		runCheck(&res, w, "artifacts", cfg.Artifacts)
	}

	// ---- corpora ----------------------------------------------------------
	for _, path := range cfg.Corpora {
		if err := checkCorpus(path); err != nil {
			res.fail(fmt.Sprintf("corpus %q: %v", path, err))
			fmt.Fprintf(w, "%s corpus %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s corpus: %s\n", PassMark, path)
		}
	}

	// ---- output directory -------------------------------------------------
	if cfg.OutDir != "" {
		if err := checkOutDir(cfg.OutDir); err != nil {
			res.fail(fmt.Sprintf("output dir %q: %v", cfg.OutDir, err))
			fmt.Fprintf(w, "%s output dir %s: %v\n", FailMark, cfg.OutDir, err)
		} else {
			fmt.Fprintf(w, "%s output dir: %s\n", PassMark, cfg.OutDir)
		}
	}

	return res
}

func runCheck(res *Result, w io.Writer, name string, check CheckFunc) {
	desc, err := check()
	if err != nil {
		res.fail(fmt.Sprintf("%s: %v", name, err))
		fmt.Fprintf(w, "%s %s: %v\n", FailMark, name, err)

		return
	}

	fmt.Fprintf(w, "%s %s: %s\n", PassMark, name, desc)
}

// checkCorpus returns an error unless path is a readable regular file whose
// leading bytes are valid UTF-8.
func checkCorpus(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.IsDir() {
		return errors.New("is a directory")
	}

	buf := make([]byte, sniffBytes)

	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}

	valid := utf8.Valid(buf[:n])
	if n == sniffBytes {
		valid = validUTF8Prefix(buf)
	}

	if !valid {
		return errors.New("not valid UTF-8")
	}

	return nil
}

// validUTF8Prefix reports whether b is valid UTF-8, allowing b to end in the
// middle of a rune.
func validUTF8Prefix(b []byte) bool {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				b = b[:i]
			}

			break
		}
	}

	return utf8.Valid(b)
}

// checkOutDir returns an error unless dir exists as a directory or its
// nearest existing ancestor is a directory.
func checkOutDir(dir string) error {
	for p := filepath.Clean(dir); ; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", p)
			}

			return nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if parent := filepath.Dir(p); parent == p {
			return err
		}
	}
}
