package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-bpe/internal/bpe"
	"github.com/example/go-bpe/internal/vocab"
)

var (
	// ErrNotFound is returned when a required artifact is absent.
	ErrNotFound = errors.New("artifact not found")
	// ErrIncompatible is returned when artifacts come from different runs
	// or an unsupported layout.
	ErrIncompatible = errors.New("artifact incompatible with merge list")
	// ErrChecksum is returned when a file no longer matches its digest.
	ErrChecksum = errors.New("artifact checksum mismatch")
)

// Artifact base names; the codec extension is appended.
const (
	MergesName      = "merges"
	VocabName       = "vocab"
	PrunedVocabName = "vocab.pruned"
	CacheName       = "cache"
	FrequenciesName = "frequencies"
)

// Learned is the output of a learning run as persisted by SaveLearned.
type Learned struct {
	Merges    []bpe.Pair
	Vocab     *vocab.Vocabulary
	Cache     *bpe.Cache
	EndOfWord string
	// Frequencies is the learning table; nil skips the file.
	Frequencies *bpe.FrequencyTable
}

// Bundle is everything an applier needs, loaded from one directory.
type Bundle struct {
	Manifest Manifest
	Merges   []bpe.Pair
	Vocab    *vocab.Vocabulary
	// Pruned is nil unless a pruned vocabulary was saved.
	Pruned *vocab.Vocabulary
	Cache  *bpe.Cache
}

type vocabPayload struct {
	SymbolToID map[string]int64 `json:"symbol_to_id"`
	IDToSymbol []string         `json:"id_to_symbol"`
}

type cachePayload struct {
	Fingerprint string            `json:"fingerprint"`
	Entries     map[string]string `json:"entries"`
}

type frequencyPayload struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Store reads and writes the artifacts of one vocabulary directory. It is
// safe for concurrent use.
type Store struct {
	dir   string
	codec Codec

	mu       sync.Mutex
	manifest Manifest
}

// NewStore prepares dir for a new learning run, creating it if needed.
func NewStore(dir string, codec Codec) (*Store, error) {
	if dir == "" {
		return nil, errors.New("vocabulary dir is required")
	}

	if codec == nil {
		codec = jsonCodec{}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vocabulary dir: %w", err)
	}

	return &Store{dir: dir, codec: codec}, nil
}

// OpenStore opens the artifacts of a previous run. The codec is taken from
// the manifest.
func OpenStore(dir string) (*Store, error) {
	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	codec, err := CodecFor(m.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}

	return &Store{dir: dir, codec: codec, manifest: m}, nil
}

// Dir returns the vocabulary directory.
func (s *Store) Dir() string { return s.dir }

// Codec returns the payload codec.
func (s *Store) Codec() Codec { return s.codec }

// Manifest returns a copy of the current manifest.
func (s *Store) Manifest() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.manifest
	m.Files = make(map[string]FileRecord, len(s.manifest.Files))

	for k, v := range s.manifest.Files {
		m.Files[k] = v
	}

	return m
}

// FileName returns the file name of an artifact base name.
func (s *Store) FileName(base string) string {
	return base + "." + s.codec.Ext()
}

// SaveLearned writes the merges, vocabulary and cache of a run and a fresh
// manifest. Files of earlier runs that are not rewritten are dropped from
// the manifest.
func (s *Store) SaveLearned(l Learned) error {
	if l.Vocab == nil || l.Cache == nil {
		return errors.New("learned vocabulary and cache are required")
	}

	eow := l.EndOfWord
	if eow == "" {
		eow = bpe.EndOfWord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := Fingerprint(l.Merges, eow)
	s.manifest = Manifest{
		FormatVersion: FormatVersion,
		RunID:         uuid.NewString(),
		Generated:     time.Now().UTC().Format(time.RFC3339),
		Codec:         s.codec.Name(),
		EndOfWord:     eow,
		NumMerges:     len(l.Merges),
		VocabSize:     l.Vocab.Len(),
		Fingerprint:   fp,
		Files:         map[string]FileRecord{},
	}

	merges := make([][2]string, len(l.Merges))
	for i, m := range l.Merges {
		merges[i] = [2]string{m.A, m.B}
	}

	if err := s.put(MergesName, merges); err != nil {
		return err
	}

	if err := s.put(VocabName, vocabPayloadOf(l.Vocab)); err != nil {
		return err
	}

	if err := s.put(CacheName, cachePayload{Fingerprint: fp, Entries: l.Cache.Snapshot()}); err != nil {
		return err
	}

	if l.Frequencies != nil {
		entries := l.Frequencies.Entries()

		rows := make([]frequencyPayload, len(entries))
		for i, e := range entries {
			rows[i] = frequencyPayload{Key: e.Key, Count: e.Count}
		}

		if err := s.put(FrequenciesName, rows); err != nil {
			return err
		}
	}

	return writeManifest(filepath.Join(s.dir, ManifestFile), s.manifest)
}

// SaveCache checkpoints c, including entries added while applying.
func (s *Store) SaveCache(c *bpe.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest.Fingerprint == "" {
		return fmt.Errorf("%w: no learned merges in %s", ErrNotFound, s.dir)
	}

	if err := s.put(CacheName, cachePayload{Fingerprint: s.manifest.Fingerprint, Entries: c.Snapshot()}); err != nil {
		return err
	}

	return writeManifest(filepath.Join(s.dir, ManifestFile), s.manifest)
}

// SavePrunedVocabulary stores the final vocabulary produced by pruning.
func (s *Store) SavePrunedVocabulary(v *vocab.Vocabulary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest.Fingerprint == "" {
		return fmt.Errorf("%w: no learned merges in %s", ErrNotFound, s.dir)
	}

	if err := s.put(PrunedVocabName, vocabPayloadOf(v)); err != nil {
		return err
	}

	return writeManifest(filepath.Join(s.dir, ManifestFile), s.manifest)
}

// put encodes v, writes it and records its digest. Callers hold s.mu.
func (s *Store) put(base string, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", base, err)
	}

	name := s.FileName(base)
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	s.manifest.Files[name] = recordOf(data)

	return nil
}

func (s *Store) get(base string, v any) error {
	name := s.FileName(base)

	s.mu.Lock()
	_, ok := s.manifest.Files[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s not in manifest", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return fmt.Errorf("read %s: %w", name, err)
	}

	if err := s.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	return nil
}

// HasFile reports whether an artifact base name is recorded in the manifest.
func (s *Store) HasFile(base string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.manifest.Files[s.FileName(base)]

	return ok
}

// LoadMerges returns the merge list. It fails with ErrIncompatible when the
// list does not match the manifest fingerprint.
func (s *Store) LoadMerges() ([]bpe.Pair, error) {
	var raw [][2]string
	if err := s.get(MergesName, &raw); err != nil {
		return nil, err
	}

	merges := make([]bpe.Pair, len(raw))
	for i, r := range raw {
		merges[i] = bpe.Pair{A: r[0], B: r[1]}
	}

	m := s.Manifest()
	if fp := Fingerprint(merges, m.EndOfWord); fp != m.Fingerprint {
		return nil, fmt.Errorf("%w: merges fingerprint %s, manifest %s", ErrIncompatible, short(fp), short(m.Fingerprint))
	}

	return merges, nil
}

// LoadVocabulary returns the learned vocabulary.
func (s *Store) LoadVocabulary() (*vocab.Vocabulary, error) {
	return s.loadVocabulary(VocabName)
}

// LoadPrunedVocabulary returns the pruned vocabulary.
func (s *Store) LoadPrunedVocabulary() (*vocab.Vocabulary, error) {
	return s.loadVocabulary(PrunedVocabName)
}

func (s *Store) loadVocabulary(base string) (*vocab.Vocabulary, error) {
	var p vocabPayload
	if err := s.get(base, &p); err != nil {
		return nil, err
	}

	v, err := vocab.FromSymbols(p.IDToSymbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.FileName(base), err)
	}

	for sym, id := range p.SymbolToID {
		if got, ok := v.ID(sym); !ok || got != id {
			return nil, fmt.Errorf("%s: symbol %q has id %d in symbol_to_id but %d in id_to_symbol", s.FileName(base), sym, id, got)
		}
	}

	return v, nil
}

// LoadCache returns the persisted cache. A cache written for another merge
// list fails with ErrIncompatible.
func (s *Store) LoadCache() (*bpe.Cache, error) {
	var p cachePayload
	if err := s.get(CacheName, &p); err != nil {
		return nil, err
	}

	if want := s.Manifest().Fingerprint; p.Fingerprint != want {
		return nil, fmt.Errorf("%w: cache fingerprint %s, merges %s", ErrIncompatible, short(p.Fingerprint), short(want))
	}

	return bpe.NewCacheFrom(p.Entries), nil
}

// LoadFrequencies returns the saved learning table.
func (s *Store) LoadFrequencies() (*bpe.FrequencyTable, error) {
	var rows []frequencyPayload
	if err := s.get(FrequenciesName, &rows); err != nil {
		return nil, err
	}

	t := bpe.NewFrequencyTable()
	for _, r := range rows {
		t.Add(r.Key, r.Count)
	}

	return t, nil
}

// Load verifies the directory and returns the artifacts needed to apply
// merges.
func (s *Store) Load() (*Bundle, error) {
	if err := s.Verify(); err != nil {
		return nil, err
	}

	b := &Bundle{Manifest: s.Manifest()}

	var err error
	if b.Merges, err = s.LoadMerges(); err != nil {
		return nil, err
	}

	if b.Vocab, err = s.LoadVocabulary(); err != nil {
		return nil, err
	}

	if b.Cache, err = s.LoadCache(); err != nil {
		return nil, err
	}

	if s.HasFile(PrunedVocabName) {
		if b.Pruned, err = s.LoadPrunedVocabulary(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Verify rechecks every file recorded in the manifest.
func (s *Store) Verify() error {
	m := s.Manifest()

	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)

		actual, err := fileSHA256(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}

			return err
		}

		if actual != m.Files[name].SHA256 {
			return fmt.Errorf("%w: %s: expected %s got %s", ErrChecksum, name, short(m.Files[name].SHA256), short(actual))
		}
	}

	return nil
}

func vocabPayloadOf(v *vocab.Vocabulary) vocabPayload {
	return vocabPayload{SymbolToID: v.SymbolToID(), IDToSymbol: v.Symbols()}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}

	return digest
}
