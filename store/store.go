// Package store is a small transactional record store backed by one YAML
// file per collection.
//
// Every operation is a transaction: the whole collection is read, changed
// in memory and written back through a temp file that is renamed over the
// original, so a crash mid-write never exposes a half-applied change.
// Transactions on the same file are serialized inside one process; separate
// processes writing the same collection are not coordinated (last rename
// wins), which is fine for the low-concurrency workloads the store targets.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoot is the directory collections live in unless WithRoot is used.
	DefaultRoot = "store"
	// EnvVar names the environment variable read for the collection suffix.
	EnvVar = "FOXY_ENV"

	fileSuffix = ".store.yaml"
)

// createTemp opens the file a new document is written to before it is
// renamed over the collection.
var createTemp = os.CreateTemp

// Record is one attribute mapping. A record has no identity beyond its
// values.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Logger receives debug output for each transaction.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

type document struct {
	Items []Record `yaml:"items"`
}

// fileLocks serializes transactions per file path across Store values.
var fileLocks = xsync.NewMapOf[string, *sync.Mutex]()

func lockFor(path string) *sync.Mutex {
	mu, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	return mu
}

// Store gives CRUD access to one collection.
type Store struct {
	collection string
	root       string
	env        string
	logger     Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRoot sets the directory holding collection files.
func WithRoot(dir string) Option {
	return func(s *Store) {
		s.root = dir
	}
}

// WithEnv sets the environment suffix. An empty env means no suffix.
func WithEnv(env string) Option {
	return func(s *Store) {
		s.env = env
	}
}

// WithLogger enables transaction debug logging.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store for collection. The environment suffix defaults to
// the FOXY_ENV variable.
func New(collection string, opts ...Option) *Store {
	s := &Store{
		collection: collection,
		root:       DefaultRoot,
		env:        os.Getenv(EnvVar),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Path returns <root>/<collection>[-<env>].store.yaml.
func (s *Store) Path() string {
	name := s.collection
	if s.env != "" {
		name += "-" + s.env
	}
	return filepath.Join(s.root, name+fileSuffix)
}

// All returns every record in insertion order, creating an empty
// collection file if there is none yet.
func (s *Store) All() ([]Record, error) {
	var out []Record
	err := s.transaction("all", true, func(doc *document) (bool, error) {
		out = doc.Items
		return false, nil
	})
	return out, err
}

// Where returns the records whose values at the keys of attrs equal the
// values in attrs, in insertion order.
func (s *Store) Where(attrs Record) ([]Record, error) {
	var out []Record
	err := s.transaction("where", false, func(doc *document) (bool, error) {
		for _, rec := range doc.Items {
			if Matches(rec, attrs) {
				out = append(out, rec)
			}
		}
		return false, nil
	})
	return out, err
}

// First returns the first record matching attrs.
func (s *Store) First(attrs Record) (Record, bool, error) {
	recs, err := s.Where(attrs)
	if err != nil || len(recs) == 0 {
		return nil, false, err
	}
	return recs[0], true, nil
}

// Count returns the number of records in the collection.
func (s *Store) Count() (int, error) {
	recs, err := s.All()
	return len(recs), err
}

// Add appends attrs as a new record and returns it.
func (s *Store) Add(attrs Record) (Record, error) {
	err := s.transaction("add", true, func(doc *document) (bool, error) {
		doc.Items = append(doc.Items, attrs)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// Update applies mutator in place to every record matching attrs, inside
// one transaction, and returns how many records it touched.
func (s *Store) Update(attrs Record, mutator func(Record)) (int, error) {
	n := 0
	err := s.transaction("update", true, func(doc *document) (bool, error) {
		for _, rec := range doc.Items {
			if Matches(rec, attrs) {
				mutator(rec)
				n++
			}
		}
		return n > 0, nil
	})
	return n, err
}

// Upsert replaces the first record matching attrs with rec, or appends
// rec when nothing matches. It reports whether rec was appended.
func (s *Store) Upsert(attrs, rec Record) (bool, error) {
	inserted := false
	err := s.transaction("upsert", true, func(doc *document) (bool, error) {
		for i, existing := range doc.Items {
			if Matches(existing, attrs) {
				doc.Items[i] = rec
				return true, nil
			}
		}
		doc.Items = append(doc.Items, rec)
		inserted = true
		return true, nil
	})
	return inserted, err
}

// Delete removes every record matching attrs and returns the count removed.
func (s *Store) Delete(attrs Record) (int, error) {
	removed := 0
	err := s.transaction("delete", true, func(doc *document) (bool, error) {
		kept := doc.Items[:0]
		for _, rec := range doc.Items {
			if Matches(rec, attrs) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		doc.Items = kept
		return removed > 0, nil
	})
	return removed, err
}

// DeleteAll removes the collection file. Later operations recreate it empty.
func (s *Store) DeleteAll() error {
	path := s.Path()
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "delete_all", Path: path, Err: err}
	}
	s.debug("store collection wiped", "path", path)
	return nil
}

// transaction reads the collection, runs fn and writes the document back
// when fn reports a change (or when create is set and the file is new).
func (s *Store) transaction(op string, create bool, fn func(*document) (bool, error)) error {
	path := s.Path()
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	doc, exists, err := readDocument(path)
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}

	if changed || (create && !exists) {
		if err := writeDocument(path, doc); err != nil {
			return err
		}
	}

	s.debug("store transaction", "op", op, "path", path, "records", len(doc.Items), "written", changed)
	return nil
}

func (s *Store) debug(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, keysAndValues...)
	}
}

func readDocument(path string) (*document, bool, error) {
	doc := &document{Items: []Record{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, false, nil
	}
	if err != nil {
		return nil, false, &IOError{Op: "read", Path: path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return doc, true, nil
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, true, &DecodeError{Path: path, Err: err}
	}
	if doc.Items == nil {
		doc.Items = []Record{}
	}
	return doc, true, nil
}

func writeDocument(path string, doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return &DecodeError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := createTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
