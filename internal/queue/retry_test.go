package queue

import (
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		ReuseLast:   true,
	}

	cases := []struct {
		attempt int
		want    time.Duration
		ok      bool
	}{
		{1, 10 * time.Second, true},
		{2, 30 * time.Second, true},
		{3, 60 * time.Second, true},
		{4, 60 * time.Second, true}, // beyond the schedule, reuse last
		{0, 0, false},
	}

	for _, tc := range cases {
		got, ok := policy.Delay(tc.attempt)
		if ok != tc.ok {
			t.Fatalf("Delay(%d) ok = %v, want %v", tc.attempt, ok, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryPolicyDelayNoReuse(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     []time.Duration{10 * time.Second},
		ReuseLast:   false,
	}

	if _, ok := policy.Delay(1); !ok {
		t.Fatal("expected a delay for the first attempt")
	}
	if _, ok := policy.Delay(2); ok {
		t.Fatal("expected no delay beyond the schedule when ReuseLast is off")
	}
}

func TestRetryDelaysNonDecreasing(t *testing.T) {
	for _, policy := range []RetryPolicy{DefaultOrderPolicy, DefaultNotificationPolicy} {
		prev := time.Duration(0)
		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			d, ok := policy.Delay(attempt)
			if !ok {
				t.Fatalf("attempt %d: expected a delay", attempt)
			}
			if d < prev {
				t.Fatalf("attempt %d: delay %v decreased from %v", attempt, d, prev)
			}
			prev = d
		}
	}
}

func TestNextRetryTime(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: []time.Duration{10 * time.Second}, ReuseLast: false}

	before := time.Now().UTC()
	next := NextRetryTime(policy, 1)
	if next == nil {
		t.Fatal("expected a retry time")
	}
	if next.Before(before.Add(9 * time.Second)) {
		t.Fatalf("retry time %v too early", next)
	}

	if NextRetryTime(policy, 2) != nil {
		t.Fatal("expected no retry time past the schedule")
	}
}
