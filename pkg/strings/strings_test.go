package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToString(t *testing.T) {
	b := []byte("hello world")
	s := BytesToString(b)
	assert.Equal(t, "hello world", s)

	assert.Equal(t, "", BytesToString([]byte{}))
	assert.Equal(t, "", BytesToString(nil))
}

func TestStringToBytes(t *testing.T) {
	b := StringToBytes("hello world")
	assert.Equal(t, "hello world", string(b))
	assert.Nil(t, StringToBytes(""))
}

func TestCloneDetachesFromBuffer(t *testing.T) {
	buf := []byte("red")
	view := BytesToString(buf)
	owned := Clone(view)

	buf[0] = 'b'
	assert.Equal(t, "bed", view)
	assert.Equal(t, "red", owned)
}

func TestBuilder(t *testing.T) {
	builder := NewBuilder(4)
	builder.WriteString("hello")
	_ = builder.WriteByte(' ')
	_, _ = builder.Write([]byte("world"))

	assert.Equal(t, "hello world", builder.String())
	assert.Equal(t, 11, builder.Len())

	builder.Reset()
	assert.Equal(t, 0, builder.Len())
}

func TestPooledBuilderIsReset(t *testing.T) {
	b := GetBuilder()
	b.WriteString("dirty")
	PutBuilder(b)

	again := GetBuilder()
	assert.Equal(t, 0, again.Len())
	PutBuilder(again)
}

func TestSprintf(t *testing.T) {
	assert.Equal(t, "row 7 of 10", Sprintf("row %d of %d", 7, 10))
	assert.Equal(t, "plain", Sprintf("plain"))
}
