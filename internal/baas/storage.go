package baas

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Upload stores body at bucket/path. Existing objects are not overwritten. Returns the object key.
func (c *Client) Upload(ctx context.Context, bucket, path string, body []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "max-age=3600")
	h.Set("x-upsert", "false")

	var out struct {
		Key string `json:"Key"`
	}
	if _, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/" + objectPath(bucket, path),
		raw:    bytes.NewReader(body),
		header: h,
	}, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		out.Key = bucket + "/" + strings.TrimLeft(path, "/")
	}
	return out.Key, nil
}

// PublicURL returns the public URL of an object in a public bucket. It does not call the backend.
func (c *Client) PublicURL(bucket, path string) string {
	return c.BaseURL + "/storage/v1/object/public/" + objectPath(bucket, path)
}

// Remove deletes the objects at paths in bucket.
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + url.PathEscape(bucket),
		body:   map[string][]string{"prefixes": paths},
	}, nil)
	return err
}

func objectPath(bucket, path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}
