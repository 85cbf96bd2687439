package iterate

import "sort"

// sortedBuffer hands out candidate values in ascending order, one at a
// time. It is materialized once per repository per run and kept in session
// state, since the position must survive across sweeps without an active
// call stack.
type sortedBuffer struct {
	values []int64
	pos    int
}

// newSortedBuffer sorts the values ascending and drops duplicates.
func newSortedBuffer(values []int64) *sortedBuffer {
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	deduped := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			deduped = append(deduped, v)
		}
	}
	return &sortedBuffer{values: deduped}
}

// next returns the next value, or ok=false when the buffer is exhausted.
func (b *sortedBuffer) next() (int64, bool) {
	if b.pos >= len(b.values) {
		return 0, false
	}
	v := b.values[b.pos]
	b.pos++
	return v, true
}

// remaining reports how many values are left.
func (b *sortedBuffer) remaining() int {
	return len(b.values) - b.pos
}
