// Package codec converts node trees to and from their binary form.
//
// All integers are little-endian and fixed width. A node is framed as a
// one byte type tag followed by its payload:
//
//	file:      u32 nameLen | name | u32 dataLen | data | i64 created | i64 modified
//	directory: u32 nameLen | name | u32 count | count × (tag | payload) | i64 created | i64 modified
//
// Timestamps are Unix seconds. The format carries no header or version.
package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

const (
	TagFile      byte = 1
	TagDirectory byte = 2
)

// DefaultMaxDepth bounds directory nesting accepted by the decoder.
const DefaultMaxDepth = 1024

// readChunk caps how much is allocated ahead of data actually arriving
// when the input length is unknown.
const readChunk = 64 << 10

// minNodeSize is the smallest encoded child: tag, two lengths, two times.
const minNodeSize = 1 + 4 + 4 + 8 + 8

var le = binary.LittleEndian

// Marshal encodes n into a new buffer.
func Marshal(n trees.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes exactly one node from data. Bytes left over after the
// node are a format error.
func Unmarshal(data []byte, opts ...DecoderOption) (trees.Node, error) {
	r := bytes.NewReader(data)
	d := NewDecoder(r, opts...)
	n, err := d.Decode()
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, &FormatError{Offset: d.offset, Reason: fmt.Sprintf("%d trailing bytes", r.Len())}
	}
	return n, nil
}

// Encoder writes encoded nodes to an output stream.
type Encoder struct {
	w       *bufio.Writer
	scratch [8]byte
}

// NewEncoder returns an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes n and its whole subtree, then flushes.
func (e *Encoder) Encode(n trees.Node) error {
	if err := e.encodeNode(n); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *Encoder) encodeNode(n trees.Node) error {
	switch v := n.(type) {
	case *trees.File:
		if v == nil {
			return trees.ErrNilNode
		}
		if err := e.w.WriteByte(TagFile); err != nil {
			return err
		}
		return e.encodeFile(v)
	case *trees.Directory:
		if v == nil {
			return trees.ErrNilNode
		}
		if err := e.w.WriteByte(TagDirectory); err != nil {
			return err
		}
		return e.encodeDirectory(v)
	case nil:
		return trees.ErrNilNode
	default:
		return fmt.Errorf("codec: unsupported node type %T", n)
	}
}

func (e *Encoder) encodeFile(f *trees.File) error {
	if err := e.writeString(f.Name()); err != nil {
		return err
	}
	if err := e.writeLen(f.Size(), "file data"); err != nil {
		return err
	}
	if _, err := f.WriteTo(e.w); err != nil {
		return err
	}
	return e.writeTimes(f)
}

func (e *Encoder) encodeDirectory(d *trees.Directory) error {
	if err := e.writeString(d.Name()); err != nil {
		return err
	}
	children := d.Children()
	if err := e.writeLen(int64(len(children)), "child count"); err != nil {
		return err
	}
	for _, child := range children {
		if err := e.encodeNode(child); err != nil {
			return fmt.Errorf("encode %q: %w", child.Name(), err)
		}
	}
	return e.writeTimes(d)
}

func (e *Encoder) writeString(s string) error {
	if err := e.writeLen(int64(len(s)), "name"); err != nil {
		return err
	}
	_, err := e.w.WriteString(s)
	return err
}

func (e *Encoder) writeLen(n int64, what string) error {
	if n < 0 || n > math.MaxUint32 {
		return fmt.Errorf("codec: %s length %d does not fit in u32", what, n)
	}
	le.PutUint32(e.scratch[:4], uint32(n))
	_, err := e.w.Write(e.scratch[:4])
	return err
}

func (e *Encoder) writeTimes(n trees.Node) error {
	for _, ts := range [2]time.Time{n.CreatedAt(), n.ModifiedAt()} {
		le.PutUint64(e.scratch[:], uint64(ts.Unix()))
		if _, err := e.w.Write(e.scratch[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecoderOption customizes a Decoder.
type DecoderOption func(*Decoder)

// WithMaxDepth bounds directory nesting. Values below 1 keep the default.
func WithMaxDepth(depth int) DecoderOption {
	return func(d *Decoder) {
		if depth > 0 {
			d.maxDepth = depth
		}
	}
}

// WithNodeOptions passes options to every node the decoder builds, for
// example a clock for directories that will later gain children.
func WithNodeOptions(opts ...trees.NodeOption) DecoderOption {
	return func(d *Decoder) {
		d.nodeOpts = append(d.nodeOpts, opts...)
	}
}

// Decoder reads encoded nodes from an input stream.
type Decoder struct {
	r        io.Reader
	sized    interface{ Len() int }
	offset   int64
	maxDepth int
	nodeOpts []trees.NodeOption
	scratch  [8]byte
}

// NewDecoder returns a decoder reading from r. When r reports its
// remaining length (as *bytes.Reader does), declared lengths are checked
// against it before anything is allocated.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{r: r, maxDepth: DefaultMaxDepth}
	if sized, ok := r.(interface{ Len() int }); ok {
		d.sized = sized
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads one node and its subtree.
func (d *Decoder) Decode() (trees.Node, error) {
	return d.decodeNode(0)
}

func (d *Decoder) decodeNode(depth int) (trees.Node, error) {
	start := d.offset
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagFile:
		return d.decodeFile()
	case TagDirectory:
		if depth >= d.maxDepth {
			return nil, &FormatError{Offset: start, Reason: fmt.Sprintf("nesting deeper than %d", d.maxDepth)}
		}
		return d.decodeDirectory(depth)
	default:
		return nil, &FormatError{Offset: start, Reason: fmt.Sprintf("unknown type tag %d", tag)}
	}
}

func (d *Decoder) decodeFile() (trees.Node, error) {
	name, err := d.readString("name")
	if err != nil {
		return nil, err
	}
	data, err := d.readBlock("file data")
	if err != nil {
		return nil, err
	}
	created, modified, err := d.readTimes()
	if err != nil {
		return nil, err
	}
	opts := append(d.nodeOpts[:len(d.nodeOpts):len(d.nodeOpts)], trees.WithTimes(created, modified))
	return trees.NewFile(name, data, opts...), nil
}

func (d *Decoder) decodeDirectory(depth int) (trees.Node, error) {
	name, err := d.readString("name")
	if err != nil {
		return nil, err
	}
	countAt := d.offset
	count, err := d.readUint32("child count")
	if err != nil {
		return nil, err
	}
	if d.sized != nil && int64(count)*minNodeSize > int64(d.sized.Len()) {
		return nil, &FormatError{Offset: countAt, Reason: fmt.Sprintf("child count %d exceeds remaining input", count)}
	}

	children := make([]trees.Node, 0, min(int(count), readChunk/minNodeSize))
	for i := uint32(0); i < count; i++ {
		child, err := d.decodeNode(depth + 1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	created, modified, err := d.readTimes()
	if err != nil {
		return nil, err
	}
	dir, err := trees.AssembleDirectory(name, created, modified, children, d.nodeOpts...)
	if err != nil {
		// Freshly decoded children are always detached.
		return nil, &FormatError{Offset: countAt, Reason: "assemble directory", Err: err}
	}
	return dir, nil
}

func (d *Decoder) readString(what string) (string, error) {
	b, err := d.readBlock(what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readBlock reads a u32 length followed by that many bytes.
func (d *Decoder) readBlock(what string) ([]byte, error) {
	lenAt := d.offset
	n, err := d.readUint32(what + " length")
	if err != nil {
		return nil, err
	}
	if d.sized != nil && int64(n) > int64(d.sized.Len()) {
		return nil, &FormatError{
			Offset: lenAt,
			Reason: fmt.Sprintf("%s length %d exceeds remaining %d bytes", what, n, d.sized.Len()),
		}
	}
	if n == 0 {
		return []byte{}, nil
	}
	if n <= readChunk {
		buf := make([]byte, n)
		if err := d.readFull(buf, what); err != nil {
			return nil, err
		}
		return buf, nil
	}

	// Unknown remaining length: grow with the data rather than trusting n.
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, d.r, int64(n))
	d.offset += copied
	if err != nil {
		return nil, d.truncated(what, err)
	}
	return buf.Bytes(), nil
}

func (d *Decoder) readTimes() (time.Time, time.Time, error) {
	created, err := d.readInt64("created time")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	modified, err := d.readInt64("modified time")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return time.Unix(created, 0), time.Unix(modified, 0), nil
}

func (d *Decoder) readByte() (byte, error) {
	if err := d.readFull(d.scratch[:1], "type tag"); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

func (d *Decoder) readUint32(what string) (uint32, error) {
	if err := d.readFull(d.scratch[:4], what); err != nil {
		return 0, err
	}
	return le.Uint32(d.scratch[:4]), nil
}

func (d *Decoder) readInt64(what string) (int64, error) {
	if err := d.readFull(d.scratch[:8], what); err != nil {
		return 0, err
	}
	return int64(le.Uint64(d.scratch[:8])), nil
}

func (d *Decoder) readFull(buf []byte, what string) error {
	n, err := io.ReadFull(d.r, buf)
	d.offset += int64(n)
	if err != nil {
		return d.truncated(what, err)
	}
	return nil
}

// truncated turns a short read into a FormatError; other I/O errors pass
// through wrapped.
func (d *Decoder) truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Offset: d.offset, Reason: "unexpected end of input reading " + what, Err: io.ErrUnexpectedEOF}
	}
	return fmt.Errorf("codec: read %s: %w", what, err)
}
