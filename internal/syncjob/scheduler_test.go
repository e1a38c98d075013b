package syncjob

import (
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 8, 29, 10, 0, 0, 0, loc),
			want: time.Date(2026, 8, 29, 23, 30, 0, 0, loc),
		},
		{
			name: "already passed rolls to tomorrow",
			now:  time.Date(2026, 8, 29, 23, 45, 0, 0, loc),
			want: time.Date(2026, 8, 30, 23, 30, 0, 0, loc),
		},
		{
			name: "exactly at trigger rolls to tomorrow",
			now:  time.Date(2026, 8, 29, 23, 30, 0, 0, loc),
			want: time.Date(2026, 8, 30, 23, 30, 0, 0, loc),
		},
		{
			name: "month boundary",
			now:  time.Date(2026, 8, 31, 23, 45, 0, 0, loc),
			want: time.Date(2026, 9, 1, 23, 30, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRun(tt.now, 23, 30)
			if !got.Equal(tt.want) {
				t.Fatalf("nextRun = %v, want %v", got, tt.want)
			}
		})
	}
}
