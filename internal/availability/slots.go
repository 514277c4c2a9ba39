package availability

// Generate splits a window into consecutive slot starts of the given size.
// A tail shorter than size is dropped.
func Generate(w Window, size int) []int {
	if size <= 0 || w.Length() < size {
		return []int{}
	}
	slots := make([]int, 0, w.Length()/size)
	for start := w.Start; start+size <= w.End; start += size {
		slots = append(slots, start)
	}
	return slots
}
