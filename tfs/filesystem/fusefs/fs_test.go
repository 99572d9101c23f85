package fusefs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/ops"
	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

var testTimestamp = time.Unix(1735689600, 0)

func newTestAdapter(t *testing.T) *ops.Adapter {
	t.Helper()
	opts := trees.WithTimes(testTimestamp, testTimestamp)
	tree := trees.NewTree()
	require.NoError(t, tree.AddChild("/", trees.NewFile("empty.txt", nil, opts)))
	require.NoError(t, tree.AddChild("/", trees.NewDirectory("dir1", opts)))
	require.NoError(t, tree.AddChild("/dir1", trees.NewFile("secret.txt", []byte("top secret!"), opts)))
	return ops.New(tree)
}

func nodeAt(a *ops.Adapter, path string) *Node {
	return &Node{adapter: a, path: path, logger: zerolog.Nop()}
}

func drain(t *testing.T, stream fs.DirStream) []fuse.DirEntry {
	t.Helper()
	defer stream.Close()
	var out []fuse.DirEntry
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		out = append(out, e)
	}
	return out
}

func TestGetattr(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), NewRoot(a, zerolog.Nop()).Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFDIR|0o755), out.Mode)
	assert.Equal(t, uint64(trees.DirectorySize), out.Size)

	out = fuse.AttrOut{}
	require.Equal(t, syscall.Errno(0), nodeAt(a, "/dir1/secret.txt").Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFREG|0o644), out.Mode)
	assert.Equal(t, uint64(11), out.Size)
	assert.Equal(t, uint64(testTimestamp.Unix()), out.Mtime)
	assert.Equal(t, uint32(blockSize), out.Blksize)

	assert.Equal(t, syscall.ENOENT, nodeAt(a, "/gone").Getattr(ctx, nil, &out))
}

func TestLookup(t *testing.T) {
	a := newTestAdapter(t)
	require.NoError(t, a.Tree().AddChild("/dir1", trees.NewFile("secret.txt", []byte("decoy"))))
	ctx := context.Background()

	root := NewRoot(a, zerolog.Nop())
	// Attaches the root inode so NewInode has a bridge to register with.
	fs.NewNodeFS(root, &fs.Options{})

	var out fuse.EntryOut
	dir, errno := root.Lookup(ctx, "dir1", &out)
	require.Equal(t, syscall.Errno(0), errno)
	require.NotNil(t, dir)
	assert.Equal(t, uint32(syscall.S_IFDIR), out.Mode&syscall.S_IFMT)
	assert.True(t, dir.IsDir())

	out = fuse.EntryOut{}
	_, errno = root.Lookup(ctx, "missing", &out)
	assert.Equal(t, syscall.ENOENT, errno)

	child, ok := dir.Operations().(*Node)
	require.True(t, ok)
	out = fuse.EntryOut{}
	file, errno := child.Lookup(ctx, "secret.txt", &out)
	require.Equal(t, syscall.Errno(0), errno)
	require.NotNil(t, file)
	assert.Equal(t, uint32(syscall.S_IFREG|0o644), out.Mode)
	assert.Equal(t, uint64(len("top secret!")), out.Size)
}

func TestReaddir(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	stream, errno := NewRoot(a, zerolog.Nop()).Readdir(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	entries := drain(t, stream)
	require.Len(t, entries, 2)
	assert.Equal(t, "empty.txt", entries[0].Name)
	assert.Equal(t, uint32(syscall.S_IFREG), entries[0].Mode)
	assert.Equal(t, "dir1", entries[1].Name)
	assert.Equal(t, uint32(syscall.S_IFDIR), entries[1].Mode)

	_, errno = nodeAt(a, "/dir1/secret.txt").Readdir(ctx)
	assert.Equal(t, syscall.ENOTDIR, errno)

	_, errno = nodeAt(a, "/missing").Readdir(ctx)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestOpen(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	file := nodeAt(a, "/dir1/secret.txt")

	fh, _, errno := file.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.Errno(0), errno)
	assert.Nil(t, fh)

	for _, flags := range []uint32{syscall.O_WRONLY, syscall.O_RDWR, syscall.O_RDONLY | syscall.O_TRUNC, syscall.O_WRONLY | syscall.O_APPEND} {
		_, _, errno = file.Open(ctx, flags)
		assert.Equal(t, syscall.EROFS, errno, "flags %#x", flags)
	}

	_, _, errno = nodeAt(a, "/dir1").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)

	_, _, errno = nodeAt(a, "/missing").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestRead(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	file := nodeAt(a, "/dir1/secret.txt")

	read := func(size int, off int64) (string, syscall.Errno) {
		res, errno := file.Read(ctx, nil, make([]byte, size), off)
		if errno != 0 {
			return "", errno
		}
		data, status := res.Bytes(nil)
		require.Equal(t, fuse.OK, status)
		return string(data), 0
	}

	got, errno := read(100, 0)
	assert.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "top secret!", got)

	got, _ = read(6, 4)
	assert.Equal(t, "secret", got)

	got, errno = read(10, 11)
	assert.Equal(t, syscall.Errno(0), errno)
	assert.Empty(t, got)

	_, errno = read(10, -1)
	assert.Equal(t, syscall.EINVAL, errno)

	_, errno = nodeAt(a, "/dir1").Read(ctx, nil, make([]byte, 10), 0)
	assert.Equal(t, syscall.EISDIR, errno)
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "/dir1", childPath("/", "dir1"))
	assert.Equal(t, "/dir1/f1", childPath("/dir1", "f1"))
}

func TestMountRequiresOptions(t *testing.T) {
	_, err := Mount(Options{Adapter: newTestAdapter(t)})
	assert.Error(t, err)

	_, err = Mount(Options{Mountpoint: t.TempDir()})
	assert.Error(t, err)
}

// fuseAvailable skips tests that need a real kernel mount.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
	_, err3 := exec.LookPath("fusermount3")
	_, err := exec.LookPath("fusermount")
	if err3 != nil && err != nil {
		t.Skip("skipping: fusermount not installed")
	}
}

func TestMount(t *testing.T) {
	fuseAvailable(t)

	mountpoint := filepath.Join(t.TempDir(), "mnt")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Adapter:    newTestAdapter(t),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Skipf("skipping: mount not permitted here: %v", err)
	}
	t.Cleanup(func() {
		assert.NoError(t, server.Unmount())
	})
	require.NoError(t, server.WaitMount())

	entries, err := os.ReadDir(mountpoint)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"empty.txt", "dir1"}, names)

	data, err := os.ReadFile(filepath.Join(mountpoint, "dir1", "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top secret!", string(data))

	info, err := os.Stat(filepath.Join(mountpoint, "dir1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(mountpoint, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = os.WriteFile(filepath.Join(mountpoint, "dir1", "secret.txt"), []byte("x"), 0o644)
	assert.Error(t, err)
}
