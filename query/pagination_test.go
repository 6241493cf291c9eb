package query

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/types"
)

func studyBackend(t *testing.T, n int) *fakeBackend {
	t.Helper()
	records := make([]*Record, n)
	for i := range records {
		records[i] = newRecord(t, "StudyInstanceUID=1.2."+string(rune('a'+i)), "StudyID="+string(rune('a'+i)))
	}
	return &fakeBackend{records: map[types.QueryLevel][]*Record{types.QueryLevelStudy: records}}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name        string
		records     int
		page        Page
		wantStatus  Status
		wantMatches int
		wantCount   bool
		wantExecute bool
	}{
		{
			name:        "No maximum",
			records:     5,
			page:        Page{},
			wantStatus:  StatusComplete,
			wantMatches: 5,
			wantExecute: true,
		},
		{
			name:        "Within maximum",
			records:     3,
			page:        Page{MaxResults: 3},
			wantStatus:  StatusComplete,
			wantMatches: 3,
			wantCount:   true,
			wantExecute: true,
		},
		{
			name:        "Truncated to maximum",
			records:     5,
			page:        Page{MaxResults: 2},
			wantStatus:  StatusPartial,
			wantMatches: 2,
			wantCount:   true,
			wantExecute: true,
		},
		{
			name:        "Truncated after offset",
			records:     5,
			page:        Page{MaxResults: 2, Offset: 2},
			wantStatus:  StatusPartial,
			wantMatches: 2,
			wantCount:   true,
			wantExecute: true,
		},
		{
			name:        "Remaining within maximum after offset",
			records:     5,
			page:        Page{MaxResults: 2, Offset: 3},
			wantStatus:  StatusComplete,
			wantMatches: 2,
			wantCount:   true,
			wantExecute: true,
		},
		{
			name:       "Offset past the last match",
			records:    5,
			page:       Page{MaxResults: 2, Offset: 5},
			wantStatus: StatusEmpty,
			wantCount:  true,
		},
		{
			name:        "Explicit limit within maximum",
			records:     5,
			page:        Page{MaxResults: 10, Limit: 4},
			wantStatus:  StatusComplete,
			wantMatches: 4,
			wantExecute: true,
		},
		{
			name:        "Explicit limit above maximum",
			records:     5,
			page:        Page{MaxResults: 2, Limit: 4},
			wantStatus:  StatusPartial,
			wantMatches: 2,
			wantCount:   true,
			wantExecute: true,
		},
		{
			name:        "No matches",
			records:     0,
			page:        Page{},
			wantStatus:  StatusEmpty,
			wantExecute: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := studyBackend(t, tt.records)
			s := NewSession(backend)
			defer s.Close()
			if err := s.Build(types.QueryLevelStudy, nil, dicom.NewDataset(), nil); err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			status, err := Paginate(ctx, s, tt.page)
			if err != nil {
				t.Fatalf("Paginate() error = %v", err)
			}
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if got := backend.countCalls > 0; got != tt.wantCount {
				t.Errorf("counted = %v, want %v", got, tt.wantCount)
			}
			if got := s.State() == StateExecuted; got != tt.wantExecute {
				t.Errorf("executed = %v, want %v", got, tt.wantExecute)
			}

			matches := 0
			if tt.wantExecute {
				for _, err := range s.Matches(ctx) {
					if err != nil {
						t.Fatalf("Matches() error = %v", err)
					}
					matches++
				}
			}
			if matches != tt.wantMatches {
				t.Errorf("matches = %d, want %d", matches, tt.wantMatches)
			}
		})
	}
}

func TestPaginate_OrderBy(t *testing.T) {
	ctx := context.Background()
	s := NewSession(studyBackend(t, 4))
	defer s.Close()
	if err := s.Build(types.QueryLevelStudy, nil, dicom.NewDataset(), nil); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	page := Page{Limit: 2, OrderBy: []Order{{Tag: dicom.StudyID, Descending: true}}}
	if _, err := Paginate(ctx, s, page); err != nil {
		t.Fatalf("Paginate() error = %v", err)
	}
	var got []string
	for match, err := range s.Matches(ctx) {
		if err != nil {
			t.Fatalf("Matches() error = %v", err)
		}
		got = append(got, match.GetString(dicom.StudyID))
	}
	if want := []string{"d", "c"}; !equalStrings(got, want) {
		t.Errorf("StudyID = %v, want %v", got, want)
	}
}
