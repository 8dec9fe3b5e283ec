package transcript

import "strings"

// Accumulator collects segments in arrival order. It does not deduplicate
// or reorder; the capture loop feeds frames in temporal order.
type Accumulator struct {
	b        strings.Builder
	segments int
}

func (a *Accumulator) Append(segment string) {
	a.b.WriteString(segment)
	a.segments++
}

// Text returns the concatenation of every appended segment.
func (a *Accumulator) Text() string { return a.b.String() }

func (a *Accumulator) Segments() int { return a.segments }
