package router

import "testing"

func TestParseBodyLimit(t *testing.T) {
	tests := []struct {
		limit string
		want  int
	}{
		{"25M", 25 * 1024 * 1024},
		{"1G", 1024 * 1024 * 1024},
		{"512K", 512 * 1024},
		{"1048576", 1048576},
		{"10m", 10 * 1024 * 1024},
		{"", 25 * 1024 * 1024},
		{"garbage", 25 * 1024 * 1024},
		{"-5M", 25 * 1024 * 1024},
	}
	for _, tt := range tests {
		if got := parseBodyLimit(tt.limit); got != tt.want {
			t.Errorf("parseBodyLimit(%q) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
