package codec

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// readBucket reads count (id, value) pairs; width is the encoded size of one pair.
// An id may appear only once per bucket.
func readBucket[K comparable, V any](r *reader, count, width int, id func() (K, error), val func() (V, error)) (map[K]V, error) {
	if err := r.need(count * width); err != nil {
		return nil, err
	}
	m := make(map[K]V, count)
	for i := 0; i < count; i++ {
		k, err := id()
		if err != nil {
			return nil, err
		}
		v, err := val()
		if err != nil {
			return nil, err
		}
		if _, dup := m[k]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, k)
		}
		m[k] = v
	}
	return m, nil
}

// appendBucket writes the pairs of m ordered by id.
func appendBucket[K cmp.Ordered, V any](b []byte, m map[K]V, putID func([]byte, K) []byte, putVal func([]byte, V) []byte) []byte {
	for _, id := range slices.Sorted(maps.Keys(m)) {
		b = putID(b, id)
		b = putVal(b, m[id])
	}
	return b
}

func checkCount[C ~uint8 | ~uint16, K comparable, V any](name string, count C, m map[K]V) error {
	if int(count) != len(m) {
		return fmt.Errorf("encode %s bucket: count %d, %d elements", name, count, len(m))
	}
	return nil
}

func putU8(b []byte, v uint8) []byte { return append(b, v) }
