package columnar

import (
	"sync/atomic"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	stringpool "github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/strings"
)

// MaxDictionarySize is the number of distinct values a one-byte index can
// address.
const MaxDictionarySize = 256

type dictSnapshot struct {
	values []string
	index  map[string]uint8
}

// Dictionary is a bidirectional string<->index map for one string column.
// Readers load an immutable snapshot; writers publish a new snapshot with
// compare-and-swap, so concurrent workers interning the same value always
// agree on its index.
type Dictionary struct {
	snap atomic.Pointer[dictSnapshot]
}

// NewDictionary creates an empty dictionary
func NewDictionary() *Dictionary {
	d := &Dictionary{}
	d.snap.Store(&dictSnapshot{index: map[string]uint8{}})
	return d
}

// Intern returns the index of s, inserting it if absent. Indices are dense
// and assigned in insertion order. NullKey cannot be stored.
func (d *Dictionary) Intern(s string) (uint8, error) {
	if s == NullKey {
		return 0, errors.New(errors.ErrorTypeValidation, "value is the reserved null key")
	}
	for {
		cur := d.snap.Load()
		if idx, ok := cur.index[s]; ok {
			return idx, nil
		}
		if len(cur.values) >= MaxDictionarySize {
			return 0, errors.New(errors.ErrorTypeCapacityOverflow, "dictionary is full").
				WithDetail("limit", MaxDictionarySize).
				WithDetail("value", s)
		}

		idx := uint8(len(cur.values)) //nolint:gosec // G115: bounded by MaxDictionarySize
		next := &dictSnapshot{
			values: make([]string, len(cur.values), len(cur.values)+1),
			index:  make(map[string]uint8, len(cur.index)+1),
		}
		copy(next.values, cur.values)
		for k, v := range cur.index {
			next.index[k] = v
		}
		next.values = append(next.values, s)
		next.index[s] = idx

		if d.snap.CompareAndSwap(cur, next) {
			return idx, nil
		}
	}
}

// InternBytes is Intern for a byte slice that may alias a reusable buffer.
// The hit path does not allocate; a new entry is cloned before it is stored.
func (d *Dictionary) InternBytes(b []byte) (uint8, error) {
	if idx, ok := d.snap.Load().index[string(b)]; ok {
		return idx, nil
	}
	return d.Intern(string(b))
}

// Lookup returns the string stored at idx
func (d *Dictionary) Lookup(idx uint8) (string, bool) {
	values := d.snap.Load().values
	if int(idx) >= len(values) {
		return "", false
	}
	return values[idx], true
}

// Index returns the index of s without inserting it
func (d *Dictionary) Index(s string) (uint8, bool) {
	idx, ok := d.snap.Load().index[s]
	return idx, ok
}

// Len returns the number of entries
func (d *Dictionary) Len() int {
	return len(d.snap.Load().values)
}

// Strings returns a copy of the entries in index order
func (d *Dictionary) Strings() []string {
	values := d.snap.Load().values
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// MemoryUsage estimates the bytes held by the dictionary
func (d *Dictionary) MemoryUsage() int64 {
	s := d.snap.Load()
	var total int64
	for _, v := range s.values {
		// string header + bytes, once in the slice and once as a map key
		total += 2 * (16 + int64(len(v)))
	}
	return total + int64(len(s.index))
}

// reorder rewrites the dictionary so that old index order[i] becomes i and
// returns the old->new translation table. order must be a permutation of
// the current indices.
func (d *Dictionary) reorder(order []uint8) [MaxDictionarySize]uint8 {
	var remap [MaxDictionarySize]uint8
	cur := d.snap.Load()
	next := &dictSnapshot{
		values: make([]string, len(order)),
		index:  make(map[string]uint8, len(order)),
	}
	for newIdx, oldIdx := range order {
		v := cur.values[oldIdx]
		next.values[newIdx] = v
		next.index[v] = uint8(newIdx) //nolint:gosec // G115: bounded by MaxDictionarySize
		remap[oldIdx] = uint8(newIdx) //nolint:gosec // G115: bounded by MaxDictionarySize
	}
	d.snap.Store(next)
	return remap
}

// String implements fmt.Stringer
func (d *Dictionary) String() string {
	return stringpool.Sprintf("Dictionary(%d entries)", d.Len())
}
