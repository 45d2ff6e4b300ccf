package pubsub

import (
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TopicURL != defaultTopicURL {
		t.Errorf("expected topic url %q, got %q", defaultTopicURL, cfg.TopicURL)
	}
	if cfg.SubscriptionURL != cfg.TopicURL {
		t.Errorf("expected subscription url to follow topic url, got %q", cfg.SubscriptionURL)
	}
	if cfg.ReceiveTimeout != defaultReceiveTimeout {
		t.Errorf("expected receive timeout %v, got %v", defaultReceiveTimeout, cfg.ReceiveTimeout)
	}
	if cfg.MaxScan != defaultMaxScan {
		t.Errorf("expected max scan %d, got %d", defaultMaxScan, cfg.MaxScan)
	}
}

func TestParseConfig_AllFields(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"topic_url":        "gcppubsub://projects/p/topics/{target}",
		"subscription_url": "gcppubsub://projects/p/subscriptions/{target}-gw",
		"receive_timeout":  "250ms",
		"max_scan":         float64(5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReceiveTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.ReceiveTimeout)
	}
	if cfg.MaxScan != 5 {
		t.Errorf("expected max scan 5, got %d", cfg.MaxScan)
	}

	sub, err := expandTemplate(t, cfg.SubscriptionURL, "orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "gcppubsub://projects/p/subscriptions/orders-gw" {
		t.Errorf("unexpected subscription url %q", sub)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []map[string]any{
		{"topic_url": "mem://{target"},
		{"max_scan": -1},
	}
	for _, cfg := range tests {
		if _, err := ParseConfig(cfg); err == nil {
			t.Errorf("expected error for %v", cfg)
		}
	}
}

func expandTemplate(t *testing.T, tmpl, target string) (string, error) {
	t.Helper()
	a, err := New("x", Config{TopicURL: tmpl})
	if err != nil {
		return "", err
	}
	return expand(a.topicURL, target)
}
