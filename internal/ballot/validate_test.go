package ballot

import (
	"errors"
	"testing"

	"github.com/zemekeneng/rankchoice/internal/apperr"
)

func TestValidate(t *testing.T) {
	eligible := []int{1, 2, 3}

	tests := []struct {
		name    string
		input   []Ranking
		wantErr error
		wantIDs []int
	}{
		{
			name:    "valid ballot out of order",
			input:   []Ranking{{CandidateID: 2, Rank: 2}, {CandidateID: 1, Rank: 1}, {CandidateID: 3, Rank: 3}},
			wantIDs: []int{1, 2, 3},
		},
		{
			name:    "partial ballot",
			input:   []Ranking{{CandidateID: 3, Rank: 1}},
			wantIDs: []int{3},
		},
		{
			name:    "empty ballot rejected",
			input:   nil,
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "unknown candidate rejected",
			input:   []Ranking{{CandidateID: 99, Rank: 1}},
			wantErr: apperr.ErrInvalidCandidate,
		},
		{
			name:    "duplicate candidate rejected",
			input:   []Ranking{{CandidateID: 1, Rank: 1}, {CandidateID: 1, Rank: 2}},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "duplicate rank rejected",
			input:   []Ranking{{CandidateID: 1, Rank: 1}, {CandidateID: 2, Rank: 1}},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "gap in ranks rejected",
			input:   []Ranking{{CandidateID: 1, Rank: 1}, {CandidateID: 2, Rank: 3}},
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input, eligible)
			if tt.wantErr != nil {
				if err == nil || !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ids := CandidateIDs(got)
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("expected ids %v, got %v", tt.wantIDs, ids)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Fatalf("expected ids %v, got %v", tt.wantIDs, ids)
				}
			}
		})
	}
}
