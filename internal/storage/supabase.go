package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SupabaseUploader writes objects to a Supabase Storage bucket.
type SupabaseUploader struct {
	client  *resty.Client
	baseURL string
	bucket  string
}

func NewSupabaseUploader(baseURL, serviceKey, bucket string) *SupabaseUploader {
	baseURL = strings.TrimRight(baseURL, "/")

	client := resty.New()
	client.SetBaseURL(baseURL + "/storage/v1")
	client.SetTimeout(30 * time.Second)
	client.SetHeaders(map[string]string{
		"Authorization": "Bearer " + serviceKey,
		"apikey":        serviceKey,
	})

	return &SupabaseUploader{client: client, baseURL: baseURL, bucket: bucket}
}

func (u *SupabaseUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(r).
		Post(fmt.Sprintf("/object/%s/%s", u.bucket, objectName))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: status %d: %s", objectName, resp.StatusCode(), resp.String())
	}
	return u.PublicURL(objectName), nil
}

// PublicURL is the unauthenticated URL for objects in a public bucket.
func (u *SupabaseUploader) PublicURL(objectName string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, objectName)
}
