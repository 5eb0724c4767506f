package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/go-bpe/internal/bpe"
)

// ManifestFile is the name of the manifest inside a vocabulary directory.
const ManifestFile = "manifest.json"

// FormatVersion is the artifact layout version written by this package.
const FormatVersion = 1

// Manifest describes the artifacts of one learning run.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	RunID         string `json:"run_id"`
	Generated     string `json:"generated"`
	Codec         string `json:"codec"`
	EndOfWord     string `json:"end_of_word"`
	NumMerges     int    `json:"num_merges"`
	VocabSize     int    `json:"vocab_size"`
	// Fingerprint identifies the merge list; caches carry it too.
	Fingerprint string                `json:"fingerprint"`
	Files       map[string]FileRecord `json:"files"`
}

// FileRecord pins the content of one artifact file.
type FileRecord struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Fingerprint returns the sha256 of a merge list and its end-of-word marker.
func Fingerprint(merges []bpe.Pair, eow string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, eow)

	for _, m := range merges {
		_, _ = io.WriteString(h, "\x00"+m.A+"\x1f"+m.B)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func readManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var out Manifest
	if err := json.Unmarshal(b, &out); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	if out.FormatVersion != FormatVersion {
		return Manifest{}, fmt.Errorf("%w: manifest format %d, want %d", ErrIncompatible, out.FormatVersion, FormatVersion)
	}

	if out.Files == nil {
		out.Files = map[string]FileRecord{}
	}

	return out, nil
}

func writeManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return writeFileAtomic(path, append(b, '\n'))
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move temp file into place: %w", err)
	}

	return nil
}

func recordOf(data []byte) FileRecord {
	sum := sha256.Sum256(data)
	return FileRecord{SHA256: hex.EncodeToString(sum[:]), Size: int64(len(data))}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
