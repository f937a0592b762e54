package logger

import "testing"

func TestSamplerWindow(t *testing.T) {
	s := newSampler(2, 5)
	var passed int
	for i := 0; i < 10; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 4 {
		t.Fatalf("passed %d of 10 with 2/5 sampling, want 4", passed)
	}
}

func TestSamplerDisabled(t *testing.T) {
	s := newSampler(0, 0)
	for i := 0; i < 3; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must pass everything")
		}
	}
}

func TestSamplerAllowClamped(t *testing.T) {
	s := newSampler(9, 3)
	for i := 0; i < 6; i++ {
		if !s.Allow() {
			t.Fatal("allow beyond window must clamp to pass-all")
		}
	}
}

func TestParseSampleSpec(t *testing.T) {
	cases := []struct {
		in            string
		allow, window int
	}{
		{"", 0, 0},
		{"50", 1, 50},
		{"2/25", 2, 25},
		{" 1 / 10 ", 1, 10},
		{"garbage", 0, 0},
		{"1/x", 0, 0},
		{"-5", 0, 0},
	}
	for _, tc := range cases {
		allow, window := parseSampleSpec(tc.in)
		if allow != tc.allow || window != tc.window {
			t.Fatalf("parseSampleSpec(%q) = %d/%d, want %d/%d", tc.in, allow, window, tc.allow, tc.window)
		}
	}
}
