package keyvalue

import "testing"

func TestParseConfig_BlobDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"bucket_url": "mem://"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != StoreBlob {
		t.Errorf("expected store %q, got %q", StoreBlob, cfg.Store)
	}
	if cfg.KeyField != defaultKeyField {
		t.Errorf("expected key field %q, got %q", defaultKeyField, cfg.KeyField)
	}
}

func TestParseConfig_S3(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"store":             "s3",
		"bucket":            "kv",
		"region":            "eu-west-1",
		"endpoint":          "http://localhost:9000",
		"access_key_id":     "ak",
		"secret_access_key": "sk",
		"use_path_style":    true,
		"prefix":            "hashes/",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bucket != "kv" || cfg.Region != "eu-west-1" {
		t.Errorf("unexpected bucket/region %q/%q", cfg.Bucket, cfg.Region)
	}
	if !cfg.UsePathStyle {
		t.Error("expected path style addressing")
	}
	if cfg.Prefix != "hashes/" {
		t.Errorf("expected prefix hashes/, got %q", cfg.Prefix)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []map[string]any{
		{},
		{"store": "s3"},
		{"store": "redis", "bucket_url": "mem://"},
	}
	for _, cfg := range tests {
		if _, err := ParseConfig(cfg); err == nil {
			t.Errorf("expected error for %v", cfg)
		}
	}
}
