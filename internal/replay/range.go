package replay

import "fmt"

// Span is an inclusive range of positions in an operation script.
type Span struct {
	From uint64
	To   uint64
}

// SplitRange splits an inclusive range into spans of at most batchSize.
func SplitRange(from, to, batchSize uint64) ([]Span, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range end must be >= range start")
	}

	spans := make([]Span, 0, (to-from)/batchSize+1)
	start := from
	for {
		end := to
		if to-start+1 > batchSize {
			end = start + batchSize - 1
		}
		spans = append(spans, Span{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return spans, nil
}
