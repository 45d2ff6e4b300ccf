package keyvalue

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // registers file://
	_ "gocloud.dev/blob/memblob"  // registers mem://
	_ "gocloud.dev/blob/s3blob"   // registers s3://
	"gocloud.dev/gcerrors"
)

// BlobStore keeps each hash as a JSON object in a gocloud.dev bucket.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobStore wraps an open bucket. The store takes ownership of it.
func NewBlobStore(bucket *blob.Bucket, prefix string) (*BlobStore, error) {
	if bucket == nil {
		return nil, fmt.Errorf("bucket is required")
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

// OpenBlobStore opens the bucket at url.
func OpenBlobStore(ctx context.Context, url, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", url, err)
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

// Get reads the hash under key.
func (s *BlobStore) Get(ctx context.Context, key string) (map[string]any, bool, error) {
	data, err := s.bucket.ReadAll(ctx, objectKey(s.prefix, key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	fields, err := decodeHash(data)
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

// Put writes the hash under key.
func (s *BlobStore) Put(ctx context.Context, key string, fields map[string]any) error {
	data, err := encodeHash(fields)
	if err != nil {
		return err
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, objectKey(s.prefix, key), data, opts); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *BlobStore) Delete(ctx context.Context, key string) (bool, error) {
	err := s.bucket.Delete(ctx, objectKey(s.prefix, key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("deleting %s: %w", key, err)
	}
	return true, nil
}

// Close closes the bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

var _ Store = (*BlobStore)(nil)
