package state

// Plan splits totalSize bytes into n contiguous segments. The last segment
// absorbs the remainder. Without range support a single segment is returned.
// Callers guarantee totalSize >= 1 and n >= 1.
func Plan(totalSize int64, n int, rangeSupported bool) []Segment {
	if !rangeSupported {
		n = 1
	}
	base := totalSize / int64(n)
	segments := make([]Segment, 0, n)
	for i := range n {
		start := int64(i) * base
		end := start + base - 1
		if i == n-1 {
			end = totalSize - 1
		}
		segments = append(segments, Segment{
			ID:     i,
			Start:  start,
			End:    end,
			Status: Pending,
		})
	}
	return segments
}
