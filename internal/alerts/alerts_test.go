package alerts

import (
	"context"
	"errors"
	"testing"
)

func TestChannelForMerchant(t *testing.T) {
	tests := []struct {
		merchantID uint
		expected   string
	}{
		{merchantID: 1, expected: "alerts:merchant:1"},
		{merchantID: 42, expected: "alerts:merchant:42"},
		{merchantID: 9001, expected: "alerts:merchant:9001"},
	}

	for _, tt := range tests {
		if got := ChannelForMerchant(tt.merchantID); got != tt.expected {
			t.Errorf("ChannelForMerchant(%d) = %q, expected %q", tt.merchantID, got, tt.expected)
		}
	}
}

func TestRenderMessage(t *testing.T) {
	tests := []struct {
		name      string
		metric    string
		operator  string
		threshold float64
		windowS   int
		value     float64
		expected  string
	}{
		{
			name:      "integer threshold drops decimals",
			metric:    "orders_per_min",
			operator:  ">",
			threshold: 5,
			windowS:   60,
			value:     7.5,
			expected:  "orders_per_min > 5 over last 60s (value=7.500)",
		},
		{
			name:      "fractional threshold",
			metric:    "aov_window",
			operator:  "<=",
			threshold: 99.9,
			windowS:   3600,
			value:     42.1234,
			expected:  "aov_window <= 99.9 over last 3600s (value=42.123)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderMessage(tt.metric, tt.operator, tt.threshold, tt.windowS, tt.value)
			if got != tt.expected {
				t.Errorf("RenderMessage = %q, expected %q", got, tt.expected)
			}
		})
	}
}

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) Publish(ctx context.Context, channel string, event *Event) error {
	s.calls++
	return s.err
}

func TestMultiPublisherFansOut(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	multi := NewMultiPublisher(a, b)

	err := multi.Publish(context.Background(), "alerts:merchant:1", &Event{RuleID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected one call per publisher, got %d and %d", a.calls, b.calls)
	}
}

func TestMultiPublisherCollectsErrors(t *testing.T) {
	a := &stubPublisher{err: errors.New("boom")}
	b := &stubPublisher{}
	multi := NewMultiPublisher(a, b)

	err := multi.Publish(context.Background(), "alerts:merchant:1", &Event{RuleID: 1})
	if err == nil {
		t.Fatal("expected error from failing publisher")
	}
	// The healthy publisher still receives the event.
	if b.calls != 1 {
		t.Errorf("expected healthy publisher to be called, got %d calls", b.calls)
	}
}
