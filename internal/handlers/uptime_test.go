package handlers

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{1 * time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{60 * time.Second, "60 seconds"},
		{90 * time.Second, "1.5 minutes"},
		{2 * time.Minute, "2 minutes"},
		{60 * time.Minute, "60 minutes"},
		{90 * time.Minute, "1.5 hours"},
		{2 * time.Hour, "2 hours"},
	}
	for _, tc := range cases {
		if got := FormatUptime(tc.d); got != tc.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
