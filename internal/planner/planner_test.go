package planner

import (
	"errors"
	"testing"
)

func TestPlanRange(t *testing.T) {
	tests := []struct {
		name          string
		lastProcessed uint64
		head          uint64
		maxBatch      uint64
		wantFrom      uint64
		wantTo        uint64
	}{
		{"fresh start capped by batch", 0, 105, 100, 1, 100},
		{"short remainder capped by head", 100, 105, 100, 101, 105},
		{"single block behind", 99, 100, 100, 100, 100},
		{"batch of one", 10, 50, 1, 11, 11},
		{"exact batch boundary", 0, 100, 100, 1, 100},
		{"mid-chain resume", 49, 1000, 10, 50, 59},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := PlanRange(tt.lastProcessed, tt.head, tt.maxBatch)
			if err != nil {
				t.Fatalf("PlanRange returned unexpected error: %v", err)
			}
			if rng.From != tt.wantFrom || rng.To != tt.wantTo {
				t.Errorf("PlanRange(%d, %d, %d) = [%d, %d], want [%d, %d]",
					tt.lastProcessed, tt.head, tt.maxBatch,
					rng.From, rng.To, tt.wantFrom, tt.wantTo)
			}
			if rng.From > rng.To {
				t.Errorf("PlanRange produced inverted range [%d, %d]", rng.From, rng.To)
			}
		})
	}
}

func TestPlanRangeAlreadySynced(t *testing.T) {
	tests := []struct {
		name          string
		lastProcessed uint64
		head          uint64
	}{
		{"at head", 100, 100},
		{"past head", 105, 100},
		{"both zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanRange(tt.lastProcessed, tt.head, 100)
			if !errors.Is(err, ErrAlreadySynced) {
				t.Errorf("PlanRange(%d, %d, 100) error = %v, want ErrAlreadySynced",
					tt.lastProcessed, tt.head, err)
			}
		})
	}
}

func TestRangeBlocks(t *testing.T) {
	rng := Range{From: 50, To: 60}
	if got := rng.Blocks(); got != 11 {
		t.Errorf("Blocks() = %d, want 11", got)
	}
}
