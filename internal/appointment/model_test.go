package appointment

import "testing"

func TestListFilterPaged(t *testing.T) {
	tests := []struct {
		name       string
		in         ListFilter
		wantLimit  int
		wantOffset int
	}{
		{"zero value", ListFilter{}, DefaultListLimit, 0},
		{"within range", ListFilter{Limit: 7, Offset: 14}, 7, 14},
		{"above max", ListFilter{Limit: 1000}, MaxListLimit, 0},
		{"negative", ListFilter{Limit: -3, Offset: -1}, DefaultListLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Paged()
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Errorf("Paged() = limit %d offset %d, want %d %d", got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
