package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

const storePath = "/data/keywordCategories.js"

const storeSrc = `export const keywordCategories = {
  'Placement': {
    primaryKeywords: [
      'placement', 'job'
    ],
    secondaryKeywords: ['company'],
    phrases: ['apply now']
  },
  'NPTEL': {
    primaryKeywords: ['nptel'],
    secondaryKeywords: ['swayam'],
    phrases: []
  }
};
`

var errInjected = errors.New("injected fault")

// faultFs fails selected operations of the wrapped filesystem.
type faultFs struct {
	afero.Fs
	failOpen   func(name string) bool
	shortWrite func(name string) bool
	failRename bool
}

func (f *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.failOpen != nil && f.failOpen(name) {
		return nil, errInjected
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err == nil && f.shortWrite != nil && f.shortWrite(name) {
		return shortFile{file}, nil
	}
	return file, err
}

func (f *faultFs) Rename(oldname, newname string) error {
	if f.failRename {
		return errInjected
	}
	return f.Fs.Rename(oldname, newname)
}

// shortFile silently drops the second half of every write.
type shortFile struct {
	afero.File
}

func (s shortFile) Write(p []byte) (int, error) {
	n, err := s.File.Write(p[:len(p)/2])
	if err != nil {
		return n, err
	}
	return len(p), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (afero.Fs, *store.Document) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, storePath, []byte(storeSrc), 0o644))
	doc, err := store.New(fs, storePath).Load()
	require.NoError(t, err)
	return fs, doc
}

func readStore(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, storePath)
	require.NoError(t, err)
	return string(data)
}

func dirNames(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

var updates = map[string]store.Update{
	"Placement":       {Primary: []string{"hiring"}, Phrases: []string{"campus recruitment drive"}},
	"NPTEL":           {Phrases: []string{"exam registration"}},
	"Whats happening": {Primary: []string{"cultural fest"}},
}

func TestMergeBacksUpThenWrites(t *testing.T) {
	fs, doc := setup(t)
	w := NewWriter(store.New(fs, storePath), Options{Logger: quietLogger()})

	res, err := w.Merge(context.Background(), doc, updates)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, storePath+".backup", res.BackupPath)
	assert.Equal(t, len(storeSrc), res.BytesBefore)
	assert.Greater(t, res.BytesAfter, res.BytesBefore)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Whats happening", res.Warnings[0].Category)
	assert.True(t, errors.Is(res.Warnings[0], internalerr.ErrCategoryNotFound))

	backup, err := afero.ReadFile(fs, res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, storeSrc, string(backup))

	got := readStore(t, fs)
	assert.Contains(t, got, "'placement', 'job',\n      'hiring'\n    ],")
	assert.Contains(t, got, "phrases: ['apply now', 'campus recruitment drive']")
	assert.Contains(t, got, "phrases: ['exam registration']")

	assert.ElementsMatch(t, []string{"keywordCategories.js", "keywordCategories.js.backup"}, dirNames(t, fs))
}

func TestMergeIsIdempotent(t *testing.T) {
	fs, doc := setup(t)
	st := store.New(fs, storePath)
	w := NewWriter(st, Options{Logger: quietLogger()})

	_, err := w.Merge(context.Background(), doc, updates)
	require.NoError(t, err)
	first := readStore(t, fs)

	doc, err = st.Load()
	require.NoError(t, err)
	res, err := w.Merge(context.Background(), doc, updates)
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, first, readStore(t, fs))
}

func TestMergeFaultAfterBackupLeavesStoreIntact(t *testing.T) {
	tests := []struct {
		name  string
		fault func(*faultFs)
	}{
		{"rename fails", func(f *faultFs) { f.failRename = true }},
		{"temp file fails", func(f *faultFs) {
			f.failOpen = func(name string) bool { return strings.Contains(name, ".tmp-") }
		}},
		{"temp write is short", func(f *faultFs) {
			f.shortWrite = func(name string) bool { return strings.Contains(name, ".tmp-") }
			f.failRename = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, _ := setup(t)
			fs := &faultFs{Fs: mem}
			tt.fault(fs)
			st := store.New(fs, storePath)
			doc, err := st.Load()
			require.NoError(t, err)

			_, err = NewWriter(st, Options{Logger: quietLogger()}).Merge(context.Background(), doc, updates)
			require.Error(t, err)
			assert.True(t, internalerr.IsFatal(err))

			assert.Equal(t, storeSrc, readStore(t, mem), "store must be byte-identical")
			backup, err := afero.ReadFile(mem, storePath+".backup")
			require.NoError(t, err)
			assert.Equal(t, storeSrc, string(backup))
			assert.ElementsMatch(t, []string{"keywordCategories.js", "keywordCategories.js.backup"}, dirNames(t, mem))
		})
	}
}

func TestMergeAbortsWhenBackupFails(t *testing.T) {
	isBackup := func(name string) bool { return strings.HasSuffix(name, ".backup") }
	tests := []struct {
		name  string
		fault func(*faultFs)
	}{
		{"backup not writable", func(f *faultFs) { f.failOpen = isBackup }},
		{"backup truncated", func(f *faultFs) { f.shortWrite = isBackup }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, _ := setup(t)
			fs := &faultFs{Fs: mem}
			tt.fault(fs)
			st := store.New(fs, storePath)
			doc, err := st.Load()
			require.NoError(t, err)

			res, err := NewWriter(st, Options{Logger: quietLogger()}).Merge(context.Background(), doc, updates)
			assert.True(t, errors.Is(err, internalerr.ErrBackupFailed), "%v", err)
			assert.False(t, res.Written)
			assert.Equal(t, storeSrc, readStore(t, mem))

			_, err = mem.Stat(LockPath(storePath))
			assert.True(t, os.IsNotExist(err), "lock must be released")
		})
	}
}

func TestMergeRespectsLock(t *testing.T) {
	fs, doc := setup(t)
	require.NoError(t, afero.WriteFile(fs, LockPath(storePath), []byte("123\n"), 0o644))

	_, err := NewWriter(store.New(fs, storePath), Options{Logger: quietLogger()}).Merge(context.Background(), doc, updates)
	assert.True(t, errors.Is(err, internalerr.ErrLocked), "%v", err)
	assert.Equal(t, storeSrc, readStore(t, fs))

	_, err = fs.Stat(LockPath(storePath))
	assert.NoError(t, err, "a lock held by someone else stays")
}

func TestMergeDetectsConcurrentEdit(t *testing.T) {
	fs, doc := setup(t)
	edited := strings.Replace(storeSrc, "'job'", "'job', 'jobs'", 1)
	require.NoError(t, afero.WriteFile(fs, storePath, []byte(edited), 0o644))

	_, err := NewWriter(store.New(fs, storePath), Options{Logger: quietLogger()}).Merge(context.Background(), doc, updates)
	assert.True(t, errors.Is(err, internalerr.ErrStoreChanged), "%v", err)
	assert.Equal(t, edited, readStore(t, fs))

	exists, err := afero.Exists(fs, storePath+".backup")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMergeTimestampedBackup(t *testing.T) {
	fs, doc := setup(t)
	w := NewWriter(store.New(fs, storePath), Options{Timestamped: true, RunID: "01JTEST", Logger: quietLogger()})
	assert.Equal(t, storePath+".01JTEST.backup", w.BackupPath())

	res, err := w.Merge(context.Background(), doc, updates)
	require.NoError(t, err)
	assert.Equal(t, storePath+".01JTEST.backup", res.BackupPath)

	backup, err := afero.ReadFile(fs, res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, storeSrc, string(backup))

	anon := NewWriter(store.New(fs, storePath), Options{Timestamped: true})
	assert.Regexp(t, `\.js\.[0-9A-Z]{26}\.backup$`, anon.BackupPath())
}

func TestMergeCancelled(t *testing.T) {
	fs, doc := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWriter(store.New(fs, storePath), Options{Logger: quietLogger()}).Merge(ctx, doc, updates)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"keywordCategories.js"}, dirNames(t, fs))

	_, err = NewWriter(store.New(fs, storePath), Options{}).Merge(context.Background(), nil, updates)
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}
