// Package gcs stores uploads in a Google Cloud Storage bucket over the JSON
// API. Uploads are single-request media uploads streamed from the caller.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

const (
	defaultEndpoint = "https://storage.googleapis.com"
	readWriteScope  = "https://www.googleapis.com/auth/devstorage.read_write"
	requestTimeout  = 60 * time.Second
	pingTimeout     = 5 * time.Second
	errorBodyLimit  = 2 << 10
)

// Client is bound to one bucket.
type Client struct {
	http     *http.Client
	endpoint string
	bucket   string
	logg     *logger.Logger
}

// NewClient resolves credentials, then confirms the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	c := &Client{endpoint: strings.TrimRight(cfg.Endpoint, "/"), bucket: cfg.BucketName, logg: logg}
	if c.endpoint == "" {
		ts, err := tokenSource(ctx, gcp)
		if err != nil {
			return nil, err
		}
		c.endpoint = defaultEndpoint
		c.http = oauth2.NewClient(context.WithoutCancel(ctx), ts)
	} else {
		c.http = &http.Client{}
	}
	c.http.Timeout = requestTimeout

	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"bucket": c.bucket, "endpoint": c.endpoint}), "gcs.ready")
	}
	return c, nil
}

// tokenSource prefers explicit service-account JSON, then a key file, then
// Application Default Credentials (metadata server on GCP).
func tokenSource(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	key := []byte(gcp.CredentialsJSON)
	if len(key) == 0 && gcp.ApplicationCredentials != "" {
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read gcp credentials file: %w", err)
		}
		key = raw
	}
	if len(key) == 0 {
		ts, err := google.DefaultTokenSource(ctx, readWriteScope)
		if err != nil {
			return nil, fmt.Errorf("gcp default credentials: %w", err)
		}
		return ts, nil
	}
	jwtCfg, err := google.JWTConfigFromJSON(key, readWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return jwtCfg.TokenSource(context.WithoutCancel(ctx)), nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping lists at most one object, which needs both valid credentials and
// list access on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := c.url("/storage/v1/b/"+url.PathEscape(c.bucket)+"/o", url.Values{"maxResults": {"1"}})
	return c.expect(ctx, "gcs bucket check", http.MethodGet, u, nil, "", 0, http.StatusOK)
}

// Put streams body to key and returns gs://bucket/key.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	u := c.url("/upload/storage/v1/b/"+url.PathEscape(c.bucket)+"/o", url.Values{
		"uploadType": {"media"},
		"name":       {key},
	})
	if err := c.expect(ctx, "gcs upload", http.MethodPost, u, body, contentType, size, http.StatusOK); err != nil {
		return "", err
	}
	return "gs://" + c.bucket + "/" + key, nil
}

// Delete removes key. Deleting a missing object succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	u := c.url("/storage/v1/b/"+url.PathEscape(c.bucket)+"/o/"+url.PathEscape(key), nil)
	return c.expect(ctx, "gcs delete", http.MethodDelete, u, nil, "", 0,
		http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}

func (c *Client) url(path string, query url.Values) string {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// expect sends one request and fails unless the status is one of ok.
func (c *Client) expect(ctx context.Context, op, method, u string, body io.Reader, contentType string, size int64, ok ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "op", op), "gcs.body.close_failed")
		}
	}()
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if text := strings.TrimSpace(string(msg)); text != "" {
		return fmt.Errorf("%s: %s: %s", op, resp.Status, text)
	}
	return fmt.Errorf("%s: %s", op, resp.Status)
}
