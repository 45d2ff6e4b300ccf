package ledger

import "testing"

func TestParseConfig_HyperledgerDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"network": "hyperledger", "gateway_url": "http://fabric-gw:8080"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channel != defaultChannel {
		t.Errorf("expected channel %q, got %q", defaultChannel, cfg.Channel)
	}
	if cfg.Contract != defaultContract {
		t.Errorf("expected contract %q, got %q", defaultContract, cfg.Contract)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []map[string]any{
		{"network": "ethereum", "gateway_url": "http://gw"},
		{"network": "hyperledger"},
		{"network": "hyperledger", "gateway_url": "not a url"},
		{"network": "solana", "gateway_url": "http://gw", "contract": "x"},
	}
	for _, cfg := range tests {
		if _, err := ParseConfig(cfg); err == nil {
			t.Errorf("expected error for %v", cfg)
		}
	}
}
