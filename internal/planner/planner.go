// Package planner computes the next block range to scan, bounded by the
// configured batch size.
package planner

import "errors"

// ErrAlreadySynced signals that the checkpoint has caught up with the chain
// head and there is no valid range to scan.
var ErrAlreadySynced = errors.New("already synced with chain head")

// Range is an inclusive block interval [From, To].
type Range struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks covered by the range.
func (r Range) Blocks() uint64 {
	return r.To - r.From + 1
}

// PlanRange computes the next range to scan after lastProcessed, capped at
// maxBatch blocks and never past the chain head. When lastProcessed has
// reached the head it returns ErrAlreadySynced instead of an inverted range.
func PlanRange(lastProcessed, head, maxBatch uint64) (Range, error) {
	if lastProcessed >= head {
		return Range{}, ErrAlreadySynced
	}

	to := lastProcessed + maxBatch
	if to > head {
		to = head
	}

	return Range{From: lastProcessed + 1, To: to}, nil
}
