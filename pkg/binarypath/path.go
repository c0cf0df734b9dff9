// Package binarypath implements the compact, self-delimiting, total-ordered
// encoding of a BinaryPath: a sequence of indices, each either a
// non-negative integer or a UTF-8 string.
//
// The wire format is fixed by the replication protocol and must stay
// byte-exact across peers, so it is hand-rolled against the spec table
// rather than delegated to a general-purpose serializer: a library is free
// to change which representation it picks for a given value, and this
// component's only job is that it never does.
package binarypath

import (
	"encoding/binary"
	"fmt"
)

// Index is one element of a BinaryPath: either a non-negative integer or a
// string key.
type Index struct {
	str      string
	intValue uint32
	isString bool
}

// Int returns an integer index.
func Int(n uint32) Index { return Index{intValue: n} }

// Key returns a string index.
func Key(s string) Index { return Index{str: s, isString: true} }

// IsString reports whether this index is a string key.
func (i Index) IsString() bool { return i.isString }

// Str returns the string value; valid only if IsString() is true.
func (i Index) Str() string { return i.str }

// IntValue returns the integer value; valid only if IsString() is false.
func (i Index) IntValue() uint32 { return i.intValue }

func (i Index) String() string {
	if i.isString {
		return i.str
	}
	return fmt.Sprintf("%d", i.intValue)
}

// Equal reports whether two indices denote the same child.
func Equal(a, b Index) bool {
	if a.isString != b.isString {
		return false
	}
	if a.isString {
		return a.str == b.str
	}
	return a.intValue == b.intValue
}

// Path is an encoded BinaryPath. The empty Path denotes the document root.
type Path []byte

// Root is the empty path, denoting the document root.
var Root = Path(nil)

const (
	tagFixIntMax  = 0x7F
	tagUint8      = 0xCC
	tagUint16     = 0xCD
	tagUint32     = 0xCE
	tagFixStrMin  = 0xA0
	tagFixStrMax  = 0xBF
	tagFixStrMask = 0x1F
	tagStr8       = 0xD9
	tagStr16      = 0xDA
	tagStr32      = 0xDB
)

// Encode renders a sequence of indices as a BinaryPath.
func Encode(indices ...Index) Path {
	buf := make([]byte, 0, len(indices)*4)
	for _, idx := range indices {
		buf = appendIndex(buf, idx)
	}
	return Path(buf)
}

func appendIndex(buf []byte, idx Index) []byte {
	if idx.isString {
		return appendString(buf, idx.str)
	}
	return appendInt(buf, idx.intValue)
}

func appendInt(buf []byte, n uint32) []byte {
	switch {
	case n <= tagFixIntMax:
		return append(buf, byte(n))
	case n <= 0xFF:
		return append(buf, tagUint8, byte(n))
	case n <= 0xFFFF:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(buf, tagUint16), b...)
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, n)
		return append(append(buf, tagUint32), b...)
	}
}

func appendString(buf []byte, s string) []byte {
	l := len(s)
	switch {
	case l <= 31:
		buf = append(buf, byte(tagFixStrMin|(l&tagFixStrMask)))
	case l < 0x100:
		buf = append(buf, tagStr8, byte(l))
	case l < 0x10000:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(l))
		buf = append(buf, tagStr16)
		buf = append(buf, b...)
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(l))
		buf = append(buf, tagStr32)
		buf = append(buf, b...)
	}
	return append(buf, s...)
}

// Decode parses a BinaryPath back into its sequence of indices.
func Decode(p Path) ([]Index, error) {
	var out []Index
	b := []byte(p)
	for len(b) > 0 {
		idx, n, err := decodeOne(b)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
		b = b[n:]
	}
	return out, nil
}

// decodeOne reads exactly one index from the front of b, returning the
// index and the number of bytes it consumed.
func decodeOne(b []byte) (Index, int, error) {
	if len(b) == 0 {
		return Index{}, 0, fmt.Errorf("binarypath: unexpected end of input")
	}
	tag := b[0]
	switch {
	case tag <= tagFixIntMax:
		return Int(uint32(tag)), 1, nil
	case tag == tagUint8:
		if len(b) < 2 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated uint8")
		}
		return Int(uint32(b[1])), 2, nil
	case tag == tagUint16:
		if len(b) < 3 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated uint16")
		}
		return Int(uint32(binary.BigEndian.Uint16(b[1:3]))), 3, nil
	case tag == tagUint32:
		if len(b) < 5 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated uint32")
		}
		return Int(binary.BigEndian.Uint32(b[1:5])), 5, nil
	case tag >= tagFixStrMin && tag <= tagFixStrMax:
		l := int(tag & tagFixStrMask)
		if len(b) < 1+l {
			return Index{}, 0, fmt.Errorf("binarypath: truncated fixstr")
		}
		return Key(string(b[1 : 1+l])), 1 + l, nil
	case tag == tagStr8:
		if len(b) < 2 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str8 header")
		}
		l := int(b[1])
		if len(b) < 2+l {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str8 body")
		}
		return Key(string(b[2 : 2+l])), 2 + l, nil
	case tag == tagStr16:
		if len(b) < 3 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str16 header")
		}
		l := int(binary.BigEndian.Uint16(b[1:3]))
		if len(b) < 3+l {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str16 body")
		}
		return Key(string(b[3 : 3+l])), 3 + l, nil
	case tag == tagStr32:
		if len(b) < 5 {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str32 header")
		}
		l := int(binary.BigEndian.Uint32(b[1:5]))
		if len(b) < 5+l {
			return Index{}, 0, fmt.Errorf("binarypath: truncated str32 body")
		}
		return Key(string(b[5 : 5+l])), 5 + l, nil
	default:
		return Index{}, 0, fmt.Errorf("binarypath: unrecognized tag byte 0x%02X", tag)
	}
}

// Append returns a new Path with idx appended after path. Because the
// encoding is self-delimiting and append-only, this is a byte concatenation
// and never needs to decode path first.
func Append(path Path, idx Index) Path {
	out := make([]byte, len(path), len(path)+8)
	copy(out, path)
	return Path(appendIndex(out, idx))
}

// Split returns the parent path and the last index of path. ok is false if
// path is the root (empty).
func Split(path Path) (parent Path, last Index, ok bool, err error) {
	if len(path) == 0 {
		return nil, Index{}, false, nil
	}
	b := []byte(path)
	var offsets []int
	offset := 0
	for offset < len(b) {
		_, n, derr := decodeOne(b[offset:])
		if derr != nil {
			return nil, Index{}, false, derr
		}
		offsets = append(offsets, offset)
		offset += n
	}
	lastStart := offsets[len(offsets)-1]
	idx, _, derr := decodeOne(b[lastStart:])
	if derr != nil {
		return nil, Index{}, false, derr
	}
	out := make([]byte, lastStart)
	copy(out, b[:lastStart])
	return Path(out), idx, true, nil
}

// Compare orders two paths by unsigned byte comparison. Integer indices
// sort numerically (their tags grow with magnitude and the payload is
// big-endian); string keys sort by length first, because the fixstr tag
// carries the length (e.g. key "10" sorts after key "2").
func Compare(a, b Path) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// Len reports the number of indices encoded in path, by scanning.
func Len(path Path) int {
	indices, err := Decode(path)
	if err != nil {
		return 0
	}
	return len(indices)
}
