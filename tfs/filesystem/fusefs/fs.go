// Package fusefs serves an ops.Adapter through the go-fuse node API.
// Every callback is a single adapter call; the binding keeps no state
// of its own beyond each node's absolute path.
package fusefs

import (
	"context"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/common"
	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/ops"
	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

const blockSize = 4096

// Node is a file or directory in the mounted tree.
type Node struct {
	fs.Inode

	adapter *ops.Adapter
	path    string
	logger  zerolog.Logger
}

var _ fs.InodeEmbedder = (*Node)(nil)
var _ fs.NodeGetattrer = (*Node)(nil)
var _ fs.NodeLookuper = (*Node)(nil)
var _ fs.NodeReaddirer = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)
var _ fs.NodeReader = (*Node)(nil)

// NewRoot returns the node for "/".
func NewRoot(adapter *ops.Adapter, logger zerolog.Logger) *Node {
	return &Node{
		adapter: adapter,
		path:    trees.Separator,
		logger:  logger,
	}
}

// Getattr reports the attributes of the node.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.adapter.GetAttr(n.path)
	if err != nil {
		return n.errno("getattr", n.path, err)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

// Lookup finds a child by name. Among duplicate names the first one
// added wins.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := childPath(n.path, name)
	attr, err := n.adapter.GetAttr(path)
	if err != nil {
		return nil, n.errno("lookup", path, err)
	}
	fillAttr(attr, &out.Attr)

	child := &Node{
		adapter: n.adapter,
		path:    path,
		logger:  n.logger,
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Mode & syscall.S_IFMT}), 0
}

// Readdir lists the children in insertion order. The bridge supplies
// "." and "..", so the adapter's synthetic entries are skipped.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	listing, err := n.adapter.ListEntries(n.path)
	if err != nil {
		return nil, n.errno("readdir", n.path, err)
	}

	entries := make([]fuse.DirEntry, 0, len(listing))
	for _, e := range listing {
		if e.Name == ops.DotEntry || e.Name == ops.DotDotEntry {
			continue
		}
		entries = append(entries, fuse.DirEntry{
			Name: e.Name,
			Mode: typeBits(e.Kind),
		})
	}
	return fs.NewListDirStream(entries), 0
}

// Open admits read-only opens of files. No handle is returned; reads go
// through Node.Read.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	attr, err := n.adapter.GetAttr(n.path)
	if err != nil {
		return nil, 0, n.errno("open", n.path, err)
	}
	if attr.IsDir() {
		return nil, 0, syscall.EISDIR
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

// Read copies up to len(dest) bytes starting at off.
func (n *Node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.adapter.ReadBytes(n.path, off, len(dest))
	if err != nil {
		return nil, n.errno("read", n.path, err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *Node) errno(op, path string, err error) syscall.Errno {
	errno := common.ToErrno(err)
	if common.IsExpected(err) {
		n.logger.Debug().Str("op", op).Str("path", path).Str("errno", errno.Error()).Msg("fuse request rejected")
	} else {
		n.logger.Error().Str("op", op).Str("path", path).Err(err).Msg("fuse request failed")
	}
	return errno
}

func childPath(parent, name string) string {
	if parent == trees.Separator {
		return trees.Separator + name
	}
	return parent + trees.Separator + name
}

func typeBits(k trees.Kind) uint32 {
	if k == trees.KindDirectory {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

func fillAttr(attr ops.Attributes, out *fuse.Attr) {
	out.Mode = typeBits(attr.Kind) | uint32(attr.Mode.Perm())
	out.Size = uint64(attr.Size)
	out.Blksize = blockSize
	out.Blocks = (out.Size + 511) / 512
	out.Nlink = 1
	if attr.IsDir() {
		out.Nlink = 2
	}
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
	out.SetTimes(&attr.AccessedAt, &attr.ModifiedAt, &attr.ModifiedAt)
}
