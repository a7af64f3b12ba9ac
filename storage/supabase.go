package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	storagego "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"
)

// bucketClient is the part of the Supabase storage API used for uploads.
type bucketClient interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storagego.FileOptions) (storagego.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storagego.UrlOptions) storagego.SignedUrlResponse
}

// SupabaseStore uploads audio to a public Supabase Storage bucket.
type SupabaseStore struct {
	client bucketClient
	bucket string
}

// NewSupabaseStore connects to the project at url with a service role key.
func NewSupabaseStore(url, key, bucket string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	return &SupabaseStore{client: client.Storage, bucket: bucket}, nil
}

// Upload writes data to key with upsert enabled and returns the public URL.
func (s *SupabaseStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	contentType := "audio/mpeg"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storagego.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", key, s.bucket, err)
	}

	url := s.client.GetPublicUrl(s.bucket, key).SignedURL
	if url == "" {
		return "", fmt.Errorf("no public url for %s in bucket %s", key, s.bucket)
	}
	return url, nil
}
