package pubsub

import (
	"fmt"
	"time"

	"github.com/yosida95/uritemplate/v3"
)

const (
	defaultTopicURL       = "mem://{target}"
	defaultReceiveTimeout = time.Second
	defaultMaxScan        = 100
)

// Config configures a pub/sub adapter.
type Config struct {
	// TopicURL and SubscriptionURL are RFC 6570 templates expanded with the
	// statement target, e.g. "gcppubsub://projects/p/topics/{target}".
	TopicURL        string
	SubscriptionURL string

	// ReceiveTimeout bounds how long a select waits for a matching message.
	ReceiveTimeout time.Duration

	// MaxScan bounds how many messages a select consumes looking for a match.
	MaxScan int
}

// ParseConfig parses a pub/sub adapter configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		TopicURL:        getStringDefault(cfg, "topic_url", defaultTopicURL),
		SubscriptionURL: getString(cfg, "subscription_url"),
		ReceiveTimeout:  getDuration(cfg, "receive_timeout", defaultReceiveTimeout),
		MaxScan:         getInt(cfg, "max_scan", defaultMaxScan),
	}
	if c.SubscriptionURL == "" {
		c.SubscriptionURL = c.TopicURL
	}
	for _, tmpl := range []string{c.TopicURL, c.SubscriptionURL} {
		if _, err := uritemplate.New(tmpl); err != nil {
			return Config{}, fmt.Errorf("invalid url template %q: %w", tmpl, err)
		}
	}
	if c.ReceiveTimeout <= 0 {
		return Config{}, fmt.Errorf("receive_timeout must be positive")
	}
	if c.MaxScan <= 0 {
		return Config{}, fmt.Errorf("max_scan must be positive")
	}
	return c, nil
}

func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func getStringDefault(cfg map[string]any, key, defaultVal string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

func getInt(cfg map[string]any, key string, defaultVal int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

func getDuration(cfg map[string]any, key string, defaultVal time.Duration) time.Duration {
	switch v := cfg[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	case time.Duration:
		return v
	}
	return defaultVal
}
