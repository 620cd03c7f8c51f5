package supabase

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"
)

// StorageClient writes generated images to Supabase Storage. Previews go to
// a public bucket; clean originals stay in a private bucket and are only
// handed out as signed URLs.
type StorageClient struct {
	client        *storage.Client
	publicBucket  string
	privateBucket string
	baseURL       string
}

func NewStorageClient(supabaseURL, serviceRoleKey, publicBucket, privateBucket string) *StorageClient {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	return &StorageClient{
		client:        storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		publicBucket:  publicBucket,
		privateBucket: privateBucket,
		baseURL:       baseURL,
	}
}

// UploadPrivate stores data in the private bucket and returns its path.
func (s *StorageClient) UploadPrivate(path string, data []byte, contentType string) (string, error) {
	if err := s.upload(s.privateBucket, path, data, contentType); err != nil {
		return "", err
	}
	return path, nil
}

// UploadPublic stores data in the public bucket and returns its public URL.
func (s *StorageClient) UploadPublic(path string, data []byte, contentType string) (string, error) {
	if err := s.upload(s.publicBucket, path, data, contentType); err != nil {
		return "", err
	}
	return s.PublicURL(path), nil
}

func (s *StorageClient) upload(bucket, path string, data []byte, contentType string) error {
	upsert := false
	_, err := s.client.UploadFile(bucket, path, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", path, bucket, err)
	}
	return nil
}

func (s *StorageClient) PublicURL(path string) string {
	return PublicObjectURL(s.baseURL, s.publicBucket, path)
}

// SignedURL returns a short-lived link to a private object.
func (s *StorageClient) SignedURL(path string, ttl time.Duration) (string, error) {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 60
	}
	resp, err := s.client.CreateSignedUrl(s.privateBucket, path, seconds)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}
	if strings.HasPrefix(resp.SignedURL, "/") {
		return s.baseURL + "/storage/v1" + resp.SignedURL, nil
	}
	return resp.SignedURL, nil
}

func PublicObjectURL(baseURL, bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", strings.TrimSuffix(baseURL, "/"), bucket, path)
}
