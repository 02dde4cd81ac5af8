package json

import (
	"bytes"
	"encoding/json"
	goerrors "errors"
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Rows    int                `json:"rows"`
	Columns map[string]int     `json:"columns"`
	Sums    map[string]float64 `json:"sums,omitempty"`
}

func TestMarshalMatchesStdlib(t *testing.T) {
	v := summary{Rows: 3, Columns: map[string]int{"id": 12, "color": 3}}

	ours, err := Marshal(v)
	require.NoError(t, err)
	std, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, string(std), string(ours))

	var back summary
	require.NoError(t, Unmarshal(ours, &back))
	assert.Equal(t, v, back)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]string{"k": "<v>"}, false))
	assert.Equal(t, "{\"k\":\"<v>\"}\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, map[string]int{"a": 1}, true))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	err := Write(&buf, make(chan int), false)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}

func TestStreamingEncoderLines(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, false)
	require.NoError(t, se.Encode(map[string]any{"id": 1}))
	require.NoError(t, se.Encode(map[string]any{"id": 2}))
	require.NoError(t, se.Close())

	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", buf.String())
	assert.Equal(t, 2, se.Count())
}

func TestStreamingEncoderArray(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, true)
	for i := 0; i < 3; i++ {
		require.NoError(t, se.Encode(i))
	}
	require.NoError(t, se.Close())

	var got []int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []int{0, 1, 2}, got)

	buf.Reset()
	empty := NewStreamingEncoder(&buf, true)
	require.NoError(t, empty.Close())
	assert.Equal(t, "[]\n", buf.String())
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestStreamingEncoderWriteError(t *testing.T) {
	boom := goerrors.New("disk full")
	se := NewStreamingEncoder(failingWriter{boom}, true)
	err := se.Encode(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, se.Close(), boom)
}
