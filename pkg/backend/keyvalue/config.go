package keyvalue

import (
	"fmt"
)

// Supported store kinds.
const (
	StoreBlob = "blob"
	StoreS3   = "s3"
)

const defaultKeyField = "id"

// Config configures a key-value adapter.
type Config struct {
	Store string

	// BucketURL opens a gocloud.dev bucket, e.g. mem://, file:///var/kv or
	// s3://bucket?region=us-east-1.
	BucketURL string

	// Bucket, Region, Endpoint and credentials configure the direct S3 store.
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// Prefix is prepended to every object key.
	Prefix string

	// KeyField names the field whose equality pins a hash under its table.
	KeyField string
}

// ParseConfig parses a key-value adapter configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		Store:           getStringDefault(cfg, "store", StoreBlob),
		BucketURL:       getString(cfg, "bucket_url"),
		Bucket:          getString(cfg, "bucket"),
		Region:          getStringDefault(cfg, "region", "us-east-1"),
		Endpoint:        getString(cfg, "endpoint"),
		AccessKeyID:     getString(cfg, "access_key_id"),
		SecretAccessKey: getString(cfg, "secret_access_key"),
		UsePathStyle:    getBool(cfg, "use_path_style"),
		Prefix:          getString(cfg, "prefix"),
		KeyField:        getStringDefault(cfg, "key_field", defaultKeyField),
	}

	switch c.Store {
	case StoreBlob:
		if c.BucketURL == "" {
			return Config{}, fmt.Errorf("bucket_url is required for the blob store")
		}
	case StoreS3:
		if c.Bucket == "" {
			return Config{}, fmt.Errorf("bucket is required for the s3 store")
		}
	default:
		return Config{}, fmt.Errorf("unsupported store %q", c.Store)
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

func getBool(cfg map[string]any, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}
