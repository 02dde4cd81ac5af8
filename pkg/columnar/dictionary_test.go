package columnar

import (
	"strconv"
	"sync"
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionaryFirstSeenOrder(t *testing.T) {
	d := NewDictionary()

	for i, s := range []string{"red", "blue", "green"} {
		idx, err := d.Intern(s)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), idx)
	}

	// stable on repeat
	idx, err := d.Intern("blue")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), idx)

	idx, err = d.InternBytes([]byte("green"))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), idx)

	s, ok := d.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, "blue", s)

	_, ok = d.Lookup(3)
	assert.False(t, ok)

	assert.Equal(t, []string{"red", "blue", "green"}, d.Strings())
	assert.Equal(t, 3, d.Len())
}

func TestDictionaryInternBytesCopies(t *testing.T) {
	d := NewDictionary()
	buf := []byte("red")
	idx, err := d.InternBytes(buf)
	require.NoError(t, err)

	copy(buf, "xxx")
	s, _ := d.Lookup(idx)
	assert.Equal(t, "red", s)
}

func TestDictionaryOverflow(t *testing.T) {
	d := NewDictionary()
	for i := 0; i < MaxDictionarySize; i++ {
		_, err := d.Intern(strconv.Itoa(i))
		require.NoError(t, err)
	}

	// existing values still resolve when full
	idx, err := d.Intern("255")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), idx)

	_, err = d.Intern("one too many")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapacityOverflow))
	assert.Equal(t, MaxDictionarySize, d.Len())
}

func TestDictionaryRejectsNullKey(t *testing.T) {
	d := NewDictionary()
	_, err := d.Intern(NullKey)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, err = d.InternBytes([]byte(NullKey))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 0, d.Len())

	table := newTestTable(t, 1, "s:string")
	err = table.SetValue("s", 0, NullKey)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestDictionaryConcurrentIntern(t *testing.T) {
	d := NewDictionary()
	const workers = 8
	values := make([]string, 64)
	for i := range values {
		values[i] = "v" + strconv.Itoa(i)
	}

	results := make([]map[string]uint8, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			seen := make(map[string]uint8, len(values))
			for i := range values {
				// each worker walks the values from a different start
				s := values[(i+w*7)%len(values)]
				idx, err := d.Intern(s)
				if err != nil {
					t.Error(err)
					return
				}
				seen[s] = idx
			}
			results[w] = seen
		}(w)
	}
	wg.Wait()

	require.Equal(t, len(values), d.Len())
	for w := 1; w < workers; w++ {
		assert.Equal(t, results[0], results[w])
	}
	for s, idx := range results[0] {
		got, ok := d.Lookup(idx)
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
}
