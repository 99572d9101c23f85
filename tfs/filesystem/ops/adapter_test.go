package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/common"
	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// newSampleAdapter builds
//
//	/
//	├── empty.txt
//	└── dir1
//	    └── secret.txt  "top secret!"
func newSampleAdapter(t *testing.T, indexed bool) (*Adapter, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	tree := trees.NewTree(trees.WithTreeClock(clock), trees.WithPathIndex(indexed))

	require.NoError(t, tree.AddChild("/", trees.NewFile("empty.txt", nil, trees.WithClock(clock))))
	require.NoError(t, tree.AddChild("/", trees.NewDirectory("dir1", trees.WithClock(clock))))
	require.NoError(t, tree.AddChild("/dir1", trees.NewFile("secret.txt", []byte("top secret!"), trees.WithClock(clock))))

	return New(tree), clock
}

func forEachIndexMode(t *testing.T, fn func(t *testing.T, a *Adapter)) {
	for _, indexed := range []bool{false, true} {
		t.Run(fmt.Sprintf("index=%v", indexed), func(t *testing.T) {
			a, _ := newSampleAdapter(t, indexed)
			fn(t, a)
		})
	}
}

func TestListDirectory(t *testing.T) {
	forEachIndexMode(t, func(t *testing.T, a *Adapter) {
		names, err := a.ListDirectory("/")
		require.NoError(t, err)
		assert.Equal(t, []string{".", "..", "empty.txt", "dir1"}, names)

		names, err = a.ListDirectory("/dir1")
		require.NoError(t, err)
		assert.Equal(t, []string{".", "..", "secret.txt"}, names)

		_, err = a.ListDirectory("/dir1/secret.txt")
		assert.ErrorIs(t, err, common.ErrNotADirectory)

		_, err = a.ListDirectory("/nope")
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestListDirectory_KeepsDuplicates(t *testing.T) {
	a, _ := newSampleAdapter(t, false)
	require.NoError(t, a.Tree().AddChild("/dir1", trees.NewFile("secret.txt", []byte("other"))))

	names, err := a.ListDirectory("/dir1")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "secret.txt", "secret.txt"}, names)

	// The first entry wins on lookup.
	data, err := a.ReadBytes("/dir1/secret.txt", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "top secret!", string(data))
}

func TestListEntries(t *testing.T) {
	a, _ := newSampleAdapter(t, false)

	entries, err := a.ListEntries("/")
	require.NoError(t, err)
	assert.Equal(t, []DirEntry{
		{Name: ".", Kind: trees.KindDirectory},
		{Name: "..", Kind: trees.KindDirectory},
		{Name: "empty.txt", Kind: trees.KindFile},
		{Name: "dir1", Kind: trees.KindDirectory},
	}, entries)

	_, err = a.ListEntries("/empty.txt")
	assert.ErrorIs(t, err, common.ErrNotADirectory)
}

func TestReadBytes(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		offset    int64
		maxLength int
		want      string
		wantErr   error
	}{
		{"whole file clipped", "/dir1/secret.txt", 0, 100, "top secret!", nil},
		{"exact length", "/dir1/secret.txt", 0, 11, "top secret!", nil},
		{"middle", "/dir1/secret.txt", 4, 6, "secret", nil},
		{"tail clipped", "/dir1/secret.txt", 8, 10, "et!", nil},
		{"at end", "/dir1/secret.txt", 11, 10, "", nil},
		{"past end", "/dir1/secret.txt", 500, 10, "", nil},
		{"zero length", "/dir1/secret.txt", 0, 0, "", nil},
		{"negative length", "/dir1/secret.txt", 0, -5, "", nil},
		{"empty file", "/empty.txt", 0, 10, "", nil},
		{"negative offset", "/dir1/secret.txt", -1, 10, "", common.ErrInvalidOffset},
		{"directory", "/dir1", 0, 10, "", common.ErrNotAFile},
		{"root", "/", 0, 10, "", common.ErrNotAFile},
		{"missing", "/dir1/missing", 0, 10, "", common.ErrNotFound},
		{"through a file", "/dir1/secret.txt/x", 0, 10, "", common.ErrNotFound},
	}

	forEachIndexMode(t, func(t *testing.T, a *Adapter) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				data, err := a.ReadBytes(tt.path, tt.offset, tt.maxLength)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Nil(t, data)
					return
				}
				require.NoError(t, err)
				require.NotNil(t, data)
				assert.Equal(t, tt.want, string(data))
			})
		}
	})
}

func TestReadBytes_ReturnsCopy(t *testing.T) {
	a, _ := newSampleAdapter(t, false)

	data, err := a.ReadBytes("/dir1/secret.txt", 0, 3)
	require.NoError(t, err)
	data[0] = 'X'

	again, err := a.ReadBytes("/dir1/secret.txt", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "top", string(again))
}

func TestReadBytes_InvalidOffsetOnlyForFiles(t *testing.T) {
	a, _ := newSampleAdapter(t, false)

	// Kind is checked before the offset.
	_, err := a.ReadBytes("/dir1", -1, 10)
	assert.ErrorIs(t, err, common.ErrNotAFile)
}

func TestGetAttr(t *testing.T) {
	a, _ := newSampleAdapter(t, false)

	root, err := a.GetAttr("/")
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, trees.DirectorySize, root.Size)
	assert.Equal(t, DirMode, root.Mode)

	dir, err := a.GetAttr("/dir1")
	require.NoError(t, err)
	assert.Equal(t, trees.KindDirectory, dir.Kind)
	assert.Equal(t, trees.DirectorySize, dir.Size)

	file, err := a.GetAttr("/dir1/secret.txt")
	require.NoError(t, err)
	assert.Equal(t, trees.KindFile, file.Kind)
	assert.Equal(t, FileMode, file.Mode)
	assert.Equal(t, int64(11), file.Size)
	assert.False(t, file.IsDir())

	empty, err := a.GetAttr("/empty.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Size)

	// Trailing and repeated separators are ignored.
	again, err := a.GetAttr("//dir1///secret.txt/")
	require.NoError(t, err)
	assert.Equal(t, file.ModifiedAt, again.ModifiedAt)
}

func TestGetAttr_Idempotent(t *testing.T) {
	a, _ := newSampleAdapter(t, true)

	first, err := a.GetAttr("/dir1/secret.txt")
	require.NoError(t, err)
	second, err := a.GetAttr("/dir1/secret.txt")
	require.NoError(t, err)

	assert.Equal(t, first.Size, second.Size)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.ModifiedAt, second.ModifiedAt)
	// AccessedAt is synthesized per call.
	assert.True(t, second.AccessedAt.After(first.AccessedAt))
}

func TestGetAttr_NotFound(t *testing.T) {
	forEachIndexMode(t, func(t *testing.T, a *Adapter) {
		for _, path := range []string{"/missing", "/dir1/missing", "/dir1/secret.txt/x", "/empty.txt/y"} {
			attr, err := a.GetAttr(path)
			assert.ErrorIs(t, err, common.ErrNotFound, path)
			assert.Equal(t, Attributes{}, attr)

			var pathErr *fs.PathError
			require.True(t, errors.As(err, &pathErr))
			assert.Equal(t, OpGetAttr, pathErr.Op)
			assert.Equal(t, path, pathErr.Path)
		}
	})
}

func TestMutationVisibility(t *testing.T) {
	a, _ := newSampleAdapter(t, true)

	before, err := a.GetAttr("/dir1")
	require.NoError(t, err)

	require.NoError(t, a.Tree().AddChild("/dir1", trees.NewFile("new.txt", []byte("fresh"))))

	after, err := a.GetAttr("/dir1")
	require.NoError(t, err)
	assert.True(t, after.ModifiedAt.After(before.ModifiedAt))

	data, err := a.ReadBytes("/dir1/new.txt", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestWithClock(t *testing.T) {
	tree := trees.NewTree()
	at := time.Unix(42, 0)
	a := New(tree, WithClock(fixedClock(at)))

	attr, err := a.GetAttr("/")
	require.NoError(t, err)
	assert.Equal(t, at, attr.AccessedAt)
	assert.Equal(t, at, a.Stats().Since)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestStats(t *testing.T) {
	a, _ := newSampleAdapter(t, false)

	_, _ = a.GetAttr("/")
	_, _ = a.GetAttr("/missing")
	_, _ = a.ListDirectory("/")
	_, _ = a.ReadBytes("/dir1", 0, 1)

	stats := a.Stats()
	assert.Equal(t, OperationStats{Calls: 2, Errors: 1}, stats.Operations[OpGetAttr])
	assert.Equal(t, OperationStats{Calls: 1}, stats.Operations[OpListDirectory])
	assert.Equal(t, OperationStats{Calls: 1, Errors: 1}, stats.Operations[OpReadBytes])
	assert.NotContains(t, stats.Operations, OpListEntries)
	assert.False(t, stats.Since.IsZero())
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	a, _ := newSampleAdapter(t, true)
	const files = 50

	var wg conc.WaitGroup
	wg.Go(func() {
		for i := 0; i < files; i++ {
			name := fmt.Sprintf("f%02d", i)
			if err := a.Tree().AddChild("/dir1", trees.NewFile(name, []byte(strings.Repeat("x", i)))); err != nil {
				panic(err)
			}
		}
	})
	for r := 0; r < 4; r++ {
		wg.Go(func() {
			for i := 0; i < 200; i++ {
				names, err := a.ListDirectory("/dir1")
				if err != nil {
					panic(err)
				}
				// Every listed file is readable and complete.
				for _, name := range names[2:] {
					if name == "secret.txt" {
						continue
					}
					data, err := a.ReadBytes("/dir1/"+name, 0, 1000)
					if err != nil {
						panic(err)
					}
					var n int
					if _, err := fmt.Sscanf(name, "f%d", &n); err != nil {
						panic(err)
					}
					if len(data) != n {
						panic(fmt.Sprintf("%s: got %d bytes", name, len(data)))
					}
				}
			}
		})
	}
	wg.Wait()

	names, err := a.ListDirectory("/dir1")
	require.NoError(t, err)
	assert.Len(t, names, files+3)
}
