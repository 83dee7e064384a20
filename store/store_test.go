package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Pallinder/go-randomdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, collection string, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithRoot(t.TempDir()), WithEnv("test")}, opts...)
	return New(collection, opts...)
}

func randomRecord() Record {
	return Record{
		"name": randomdata.SillyName(),
		"city": randomdata.City(),
		"age":  randomdata.Number(18, 90),
	}
}

func TestPathIncludesEnvSuffix(t *testing.T) {
	s := New("people", WithRoot("data"), WithEnv("test"))
	assert.Equal(t, filepath.Join("data", "people-test.store.yaml"), s.Path())

	s = New("people", WithRoot("data"), WithEnv(""))
	assert.Equal(t, filepath.Join("data", "people.store.yaml"), s.Path())
}

func TestEnvDefaultsToEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvVar, "production")
	s := New("people", WithRoot("data"))
	assert.Equal(t, filepath.Join("data", "people-production.store.yaml"), s.Path())
}

func TestAllCreatesEmptyCollection(t *testing.T) {
	s := newTestStore(t, "empty")

	recs, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = os.Stat(s.Path())
	assert.NoError(t, err, "collection file should exist after All")
}

func TestAddThenWhereReturnsTheRecord(t *testing.T) {
	s := newTestStore(t, "people")
	rec := randomRecord()

	added, err := s.Add(rec)
	require.NoError(t, err)
	assert.Equal(t, rec, added)

	got, err := s.Where(rec)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestWherePreservesOrderAndFiltersByValue(t *testing.T) {
	s := newTestStore(t, "people")
	for i, name := range []string{"ann", "bob", "cid", "dan"} {
		group := "odd"
		if i%2 == 0 {
			group = "even"
		}
		_, err := s.Add(Record{"name": name, "group": group, "rank": i})
		require.NoError(t, err)
	}

	evens, err := s.Where(Record{"group": "even"})
	require.NoError(t, err)
	require.Len(t, evens, 2)
	assert.Equal(t, "ann", evens[0]["name"])
	assert.Equal(t, "cid", evens[1]["name"])

	ranked, err := s.Where(Record{"rank": int64(3)})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "dan", ranked[0]["name"])

	none, err := s.Where(Record{"group": "even", "name": "bob"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAllKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t, "ordered")
	var names []string
	for i := 0; i < 5; i++ {
		rec := randomRecord()
		rec["seq"] = i
		names = append(names, rec["name"].(string))
		_, err := s.Add(rec)
		require.NoError(t, err)
	}

	recs, err := s.All()
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for i, rec := range recs {
		assert.Equal(t, names[i], rec["name"])
		assert.Equal(t, i, rec["seq"])
	}
}

func TestUpdateMutatesMatchingRecords(t *testing.T) {
	s := newTestStore(t, "people")
	_, err := s.Add(Record{"name": "ann", "status": "new"})
	require.NoError(t, err)
	_, err = s.Add(Record{"name": "bob", "status": "new"})
	require.NoError(t, err)
	_, err = s.Add(Record{"name": "cid", "status": "old"})
	require.NoError(t, err)

	n, err := s.Update(Record{"status": "new"}, func(r Record) {
		r["status"] = "seen"
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seen, err := s.Where(Record{"status": "seen"})
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	old, err := s.Where(Record{"status": "old"})
	require.NoError(t, err)
	assert.Len(t, old, 1)
}

func TestDeleteRemovesAllAndOnlyMatches(t *testing.T) {
	s := newTestStore(t, "people")
	for _, tag := range []string{"a", "b", "a", "c", "a"} {
		_, err := s.Add(Record{"tag": tag, "id": randomdata.SillyName()})
		require.NoError(t, err)
	}

	removed, err := s.Delete(Record{"tag": "a"})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	rest, err := s.All()
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "b", rest[0]["tag"])
	assert.Equal(t, "c", rest[1]["tag"])

	removed, err = s.Delete(Record{"tag": "zzz"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDeleteAllThenAddStartsFresh(t *testing.T) {
	s := newTestStore(t, "people")
	_, err := s.Add(randomRecord())
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll())
	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))

	recs, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, recs)

	rec := randomRecord()
	_, err = s.Add(rec)
	require.NoError(t, err)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteAllOnMissingCollection(t *testing.T) {
	s := newTestStore(t, "never-created")
	assert.NoError(t, s.DeleteAll())
}

func TestEnvironmentsDoNotShareFiles(t *testing.T) {
	root := t.TempDir()
	testStore := New("shared", WithRoot(root), WithEnv("test"))
	prodStore := New("shared", WithRoot(root), WithEnv("production"))

	_, err := testStore.Add(Record{"k": "v"})
	require.NoError(t, err)

	recs, err := prodStore.All()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileIsHumanReadableYAML(t *testing.T) {
	s := newTestStore(t, "yaml")
	_, err := s.Add(Record{"key": "GET/x", "value": "hello"})
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "items:"), text)
	assert.Contains(t, text, "key: GET/x")
	assert.Contains(t, text, "value: hello")
}

func TestMalformedFileFailsWithoutRewriting(t *testing.T) {
	s := newTestStore(t, "broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	garbage := []byte("items: [unclosed\n")
	require.NoError(t, os.WriteFile(s.Path(), garbage, 0o644))

	_, err := s.Where(Record{})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = s.Add(Record{"a": 1})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, s.Path(), decodeErr.Path)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, garbage, data)
}

func TestFailedWriteKeepsPreviousFile(t *testing.T) {
	tests := []struct {
		name string
		op   string
		temp func(dir, pattern string) (*os.File, error)
	}{
		{
			name: "temp file cannot be created",
			op:   "create",
			temp: func(string, string) (*os.File, error) {
				return nil, os.ErrPermission
			},
		},
		{
			name: "temp file cannot be written",
			op:   "write",
			temp: func(dir, pattern string) (*os.File, error) {
				f, err := os.CreateTemp(dir, pattern)
				if err != nil {
					return nil, err
				}
				_ = f.Close()
				return f, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, "atomic")
			_, err := s.Add(randomRecord())
			require.NoError(t, err)
			before, err := os.ReadFile(s.Path())
			require.NoError(t, err)

			createTemp = tt.temp
			t.Cleanup(func() { createTemp = os.CreateTemp })

			_, err = s.Add(randomRecord())
			var ioErr *IOError
			require.ErrorAs(t, err, &ioErr)
			assert.Equal(t, tt.op, ioErr.Op)

			after, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			assert.Equal(t, before, after)

			leftovers, err := filepath.Glob(s.Path() + ".tmp*")
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	s := newTestStore(t, "concurrent")
	other := New(s.Collection(), WithRoot(filepath.Dir(s.Path())), WithEnv("test"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := s
			if i%2 == 1 {
				target = other
			}
			_, err := target.Add(Record{"i": i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestFirst(t *testing.T) {
	s := newTestStore(t, "first")
	_, _, err := s.First(Record{"x": 1})
	require.NoError(t, err)

	_, err = s.Add(Record{"x": 1, "n": "a"})
	require.NoError(t, err)
	_, err = s.Add(Record{"x": 1, "n": "b"})
	require.NoError(t, err)

	rec, ok, err := s.First(Record{"x": 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", rec["n"])
}

func TestMatchesNormalizesNumbers(t *testing.T) {
	assert.True(t, Matches(Record{"n": 3}, Record{"n": int64(3)}))
	assert.True(t, Matches(Record{"n": 3}, Record{"n": 3.0}))
	assert.False(t, Matches(Record{"n": 3}, Record{"n": 3.5}))
	assert.True(t, Matches(Record{"m": map[string]any{"a": 1}}, Record{"m": Record{"a": uint8(1)}}))
	assert.True(t, Matches(Record{}, Record{"missing": nil}))
	assert.False(t, Matches(Record{}, Record{"missing": "x"}))
}

func TestUpsertReplacesOrAppends(t *testing.T) {
	s := newTestStore(t, "upsert")

	inserted, err := s.Upsert(Record{"key": "a"}, Record{"key": "a", "value": "1"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Upsert(Record{"key": "a"}, Record{"key": "a", "value": "2"})
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0]["value"])
}
