package trees

import (
	"bytes"
	"errors"
	"io"
	"time"
)

// nodeBase holds the attributes every variant shares.
type nodeBase struct {
	name       string
	createdAt  time.Time
	modifiedAt time.Time
	attached   bool
}

func (b *nodeBase) Name() string          { return b.name }
func (b *nodeBase) CreatedAt() time.Time  { return b.createdAt }
func (b *nodeBase) ModifiedAt() time.Time { return b.modifiedAt }
func (b *nodeBase) isNode()               {}

// File is the byte-content variant of Node.
type File struct {
	nodeBase
	data []byte
}

// NewFile creates a detached file holding a copy of data.
func NewFile(name string, data []byte, opts ...NodeOption) *File {
	o := applyNodeOptions(opts)
	return &File{
		nodeBase: nodeBase{
			name:       name,
			createdAt:  o.createdAt,
			modifiedAt: o.modifiedAt,
		},
		data: bytes.Clone(data),
	}
}

func (f *File) Kind() Kind { return KindFile }

// Size is the length of the file content.
func (f *File) Size() int64 { return int64(len(f.data)) }

// Bytes returns a copy of the file content.
func (f *File) Bytes() []byte {
	if f.data == nil {
		return []byte{}
	}
	return bytes.Clone(f.data)
}

// ReadAt implements io.ReaderAt over the file content.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("trees: negative offset")
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteTo implements io.WriterTo, writing the raw content to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.data)
	return int64(n), err
}
