package binarypath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]Index{
		nil,
		{Int(0)},
		{Int(127)},
		{Int(128)},
		{Int(255)},
		{Int(256)},
		{Int(65535)},
		{Int(65536)},
		{Key("")},
		{Key("foo")},
		{Key(string(make([]byte, 31)))},
		{Key(string(make([]byte, 32)))},
		{Key(string(make([]byte, 255)))},
		{Key(string(make([]byte, 256)))},
		{Int(1), Key("bar"), Int(42)},
	}
	for _, c := range cases {
		encoded := Encode(c...)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Len(t, decoded, len(c))
		for i := range c {
			assert.True(t, Equal(c[i], decoded[i]))
		}
	}
}

func TestEncodingIsByteExact(t *testing.T) {
	assert.Equal(t, []byte{0x00}, []byte(Encode(Int(0))))
	assert.Equal(t, []byte{0x7F}, []byte(Encode(Int(127))))
	assert.Equal(t, []byte{0xCC, 0x80}, []byte(Encode(Int(128))))
	assert.Equal(t, []byte{0xCD, 0x01, 0x00}, []byte(Encode(Int(256))))
	assert.Equal(t, []byte{0xCE, 0x00, 0x01, 0x00, 0x00}, []byte(Encode(Int(65536))))
	assert.Equal(t, []byte{0xA3, 'f', 'o', 'o'}, []byte(Encode(Key("foo"))))
}

func TestSplit(t *testing.T) {
	p := Encode(Key("foo"), Int(3), Key("bar"))
	parent, last, ok, err := Split(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, Equal(Key("bar"), last))
	assert.Equal(t, Path(Encode(Key("foo"), Int(3))), parent)

	parent, _, ok, err = Split(Root)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, parent)
}

func TestCompareIsUnsignedByteOrder(t *testing.T) {
	// Small integers are single fixint bytes, so byte order matches
	// numeric order: 2 sorts before 10.
	ten := Encode(Int(10))
	two := Encode(Int(2))
	assert.True(t, Compare(two, ten) < 0, "fixint 2 sorts before fixint 10 byte-wise")

	// A two-character string key "10" vs one-character "2": the fixstr tag
	// byte carries the length and is compared first, so the longer key
	// sorts after the shorter one whatever their characters.
	s10 := Encode(Key("10"))
	s2 := Encode(Key("2"))
	assert.True(t, Compare(s10, s2) > 0, "fixstr header 0xA2 sorts after 0xA1 even though '1' < '2'")
}

func TestAppendMatchesEncode(t *testing.T) {
	base := Encode(Key("foo"))
	appended := Append(base, Int(5))
	assert.Equal(t, Path(Encode(Key("foo"), Int(5))), appended)
}

func rapidIndex(t *rapid.T) Index {
	if rapid.Bool().Draw(t, "isString") {
		return Key(rapid.StringN(0, 40, -1).Draw(t, "str"))
	}
	return Int(rapid.Uint32().Draw(t, "int"))
}

func TestRapidRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		indices := make([]Index, n)
		for i := range indices {
			indices[i] = rapidIndex(t)
		}
		encoded := Encode(indices...)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(decoded) != len(indices) {
			t.Fatalf("length mismatch: got %d want %d", len(decoded), len(indices))
		}
		for i := range indices {
			if !Equal(indices[i], decoded[i]) {
				t.Fatalf("index %d mismatch: got %v want %v", i, decoded[i], indices[i])
			}
		}
	})
}
