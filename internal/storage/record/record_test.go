package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(recs ...Record) []byte {
	var buf []byte
	for _, r := range recs {
		buf = Append(buf, r)
	}
	return buf
}

func TestAppend_Layout(t *testing.T) {
	buf := Append(nil, Record{Version: 7, Key: []byte("ab"), Value: []byte("xyz")})

	assert.Equal(t, []byte{
		7, 0, 0, 0,
		2, 0, 0, 0, 'a', 'b',
		3, 0, 0, 0, 'x', 'y', 'z',
	}, buf)
	assert.Equal(t, Size(2, 3), len(buf))
}

func TestReader_Sequence(t *testing.T) {
	recs := []Record{
		{Version: 1, Key: []byte("k1"), Value: []byte("v1")},
		{Version: 2, Key: []byte("k2"), Value: []byte("value-2")},
		Revert(1),
	}
	buf := encodeAll(recs...)

	rd := NewReader(bytes.NewReader(buf), 0, int64(len(buf)))
	for i, want := range recs {
		res := rd.Next()
		require.Equal(t, StatusOK, res.Status, "record %d", i)
		assert.Equal(t, want, res.Record)
	}
	res := rd.Next()
	assert.Equal(t, StatusEndOfLog, res.Status)
	assert.Equal(t, int64(len(buf)), res.Offset)
}

func TestReader_Corrupt(t *testing.T) {
	good := Append(nil, Record{Version: 1, Key: []byte("key"), Value: []byte("value")})

	tests := []struct {
		name string
		tail []byte
	}{
		{"partial header", []byte{1, 0, 0}},
		{"zeroed tail", make([]byte, 64)},
		{"key longer than input", []byte{1, 0, 0, 0, 0xff, 0, 0, 0, 'a'}},
		{"empty value", Append(nil, Record{Version: 1, Key: []byte("k"), Value: nil})},
		{"truncated value", good[:len(good)-2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append(append([]byte(nil), good...), tt.tail...)
			rd := NewReader(bytes.NewReader(buf), 0, int64(len(buf)))

			require.Equal(t, StatusOK, rd.Next().Status)
			res := rd.Next()
			assert.Equal(t, StatusCorrupt, res.Status)
			assert.Equal(t, int64(len(good)), res.Offset)
			assert.Error(t, res.Err)
			assert.Equal(t, int64(len(good)), rd.Offset())
		})
	}
}

func TestRevertMarker(t *testing.T) {
	r := Revert(42)
	target, ok := r.RevertTarget()
	require.True(t, ok)
	assert.Equal(t, uint32(42), target)

	data := Record{Version: RevertVersion, Key: []byte("other"), Value: []byte{1, 0, 0, 0}}
	_, ok = data.RevertTarget()
	assert.False(t, ok)

	data = Record{Version: 3, Key: []byte("revert"), Value: []byte{1, 0, 0, 0}}
	_, ok = data.RevertTarget()
	assert.False(t, ok)
}
