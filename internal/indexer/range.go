package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Validate reports whether the range is well formed.
func (r BlockRange) Validate() error {
	if r.To < r.From {
		return fmt.Errorf("to block %d must be >= from block %d", r.To, r.From)
	}
	return nil
}

// Span returns To - From.
func (r BlockRange) Span() uint64 {
	return r.To - r.From
}

func (r BlockRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// SplitEven divides r into at most n contiguous sub-ranges of equal size
// (the last one may be shorter).
func SplitEven(r BlockRange, n int) []BlockRange {
	if n <= 1 || r.Validate() != nil {
		return []BlockRange{r}
	}
	count := r.Span() + 1
	size := (count + uint64(n) - 1) / uint64(n)
	ranges, err := SplitRange(r.From, r.To, size)
	if err != nil {
		return []BlockRange{r}
	}
	return ranges
}
