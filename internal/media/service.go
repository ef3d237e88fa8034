// Package media stores uploaded logo images in S3-compatible object storage.
// The returned URL is written back into the profile through a normal
// validated edit, so the document never references storage internals.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Service struct {
	client *minio.Client
	bucket string
	useSSL bool
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket, useSSL: useSSL}, nil
}

// UploadLogo stores a logo image and returns its public URL.
func (s *Service) UploadLogo(ctx context.Context, docType, docID, contentType string, body io.Reader, size int64) (string, error) {
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}

	key := ObjectKey(docType, docID, ext)
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("put logo: %w", err)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}

// ExtensionFor maps an allowed image content type to a file extension.
func ExtensionFor(contentType string) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported logo content type %q", contentType)
	}
	return ext, nil
}

// ObjectKey builds the storage key for a document's logo. One key per
// document: re-uploading replaces the previous image.
func ObjectKey(docType, docID, ext string) string {
	return fmt.Sprintf("%s/%s/logo%s", docType, docID, ext)
}
