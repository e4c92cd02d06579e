package booking

// NextBatch returns centres[start:next] with next = min(start+size, len).
// ok is false once start has reached the end of the list.
func NextBatch(centres []string, start, size int) (batch []string, next int, ok bool) {
	if start >= len(centres) || size < 1 {
		return nil, start, false
	}
	next = min(start+size, len(centres))
	return centres[start:next], next, true
}

// Partition splits centres into consecutive batches of at most size.
func Partition(centres []string, size int) [][]string {
	var out [][]string
	for start := 0; ; {
		b, next, ok := NextBatch(centres, start, size)
		if !ok {
			return out
		}
		out = append(out, b)
		start = next
	}
}
