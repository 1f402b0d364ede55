// Package remote wraps the document-search service HTTP API behind the
// narrow gateway the engines need: collection create/delete, resumable item
// upload, operation polling, item metadata, and item delete.
//
// Deletes are idempotent: a 404 surfaces as [ErrNotFound], which callers
// treat as "already gone". Response fields that may arrive as text or number
// are canonicalised by [FlexInt64] so nothing outside this package handles
// the ambiguity.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const apiVersion = "v1beta"

// ErrNotFound reports that the remote entity does not exist. Deletion
// reconciliation treats it as success.
var ErrNotFound = errors.New("remote entity not found")

// Client is the HTTP gateway to the remote document-search service.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     *slog.Logger
}

// NewClient creates a gateway for the service at baseURL. The request timeout
// is long to accommodate large uploads; engines treat a timed-out call as a
// per-record failure and move on.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 10 * time.Minute},
		log:     logger,
	}
}

// NewClientWithHTTP creates a gateway with a caller-supplied HTTP client.
// Intended for testing against httptest servers.
func NewClientWithHTTP(baseURL, apiKey string, hc *http.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, hc: hc, log: logger}
}

// apiURL builds <base>/<version>/<path>?key=...
func (c *Client) apiURL(path string, extra url.Values) string {
	v := url.Values{}
	v.Set("key", c.apiKey)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s/%s/%s?%s", c.baseURL, apiVersion, path, v.Encode())
}

// uploadURL builds <base>/upload/<version>/<path>?key=...
func (c *Client) uploadURL(path string) string {
	return fmt.Sprintf("%s/upload/%s/%s?key=%s", c.baseURL, apiVersion, path, url.QueryEscape(c.apiKey))
}

// CreateCollection creates a remote collection with the given title and
// returns its remote identity, timestamps, and counts.
func (c *Client) CreateCollection(ctx context.Context, title string) (*Collection, error) {
	body, _ := json.Marshal(createCollectionRequest{DisplayName: title})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL("fileSearchStores", nil), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var col Collection
	if err := c.do(req, &col); err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", title, err)
	}
	return &col, nil
}

// DeleteCollection deletes a remote collection. With force, the service also
// drops the collection's items. A missing collection surfaces as
// [ErrNotFound].
func (c *Client) DeleteCollection(ctx context.Context, remoteName string, force bool) error {
	extra := url.Values{}
	if force {
		extra.Set("force", "true")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL(remoteName, extra), nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("deleting collection %s: %w", remoteName, err)
	}
	return nil
}

// UploadItem uploads the file at path into the given remote collection using
// the service's resumable upload protocol and returns the handle of the
// asynchronous ingestion operation. Size and MIME type are declared up front;
// the file bytes are streamed, not buffered.
func (c *Client) UploadItem(ctx context.Context, collectionRemoteName, path, displayName, mimeType string, size int64) (*Operation, error) {
	uploadTo, err := c.initiateUpload(ctx, collectionRemoteName, displayName, mimeType, size)
	if err != nil {
		return nil, err
	}
	return c.sendBytes(ctx, uploadTo, path, size)
}

// initiateUpload declares the upload and returns the single-use upload
// channel URL issued by the service.
func (c *Client) initiateUpload(ctx context.Context, collectionRemoteName, displayName, mimeType string, size int64) (string, error) {
	body, _ := json.Marshal(uploadMetadata{DisplayName: displayName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.uploadURL(collectionRemoteName+":uploadToFileSearchStore"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating initiate request: %w", err)
	}
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiating upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("initiating upload: status %d: %s", resp.StatusCode, string(b))
	}

	uploadTo := resp.Header.Get("X-Goog-Upload-URL")
	if uploadTo == "" {
		return "", errors.New("initiating upload: no upload URL returned")
	}
	return uploadTo, nil
}

// sendBytes streams the file to the upload channel and finalizes, returning
// the ingestion operation handle.
func (c *Client) sendBytes(ctx context.Context, uploadTo, path string, size int64) (*Operation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadTo, f)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	var op Operation
	if err := c.do(req, &op); err != nil {
		return nil, fmt.Errorf("uploading %q: %w", path, err)
	}
	return &op, nil
}

// GetOperation fetches the current state of an asynchronous operation.
// Retried: the call is idempotent and transient failures would otherwise
// delay resolution by a whole poll interval.
func (c *Client) GetOperation(ctx context.Context, operationName string) (*Operation, error) {
	var op Operation
	err := Retry(ctx, defaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(operationName, nil), nil)
		if err != nil {
			return fmt.Errorf("creating operation request: %w", err)
		}
		return c.do(req, &op)
	})
	if err != nil {
		return nil, fmt.Errorf("getting operation %s: %w", operationName, err)
	}
	return &op, nil
}

// GetItem fetches the remote metadata of an uploaded item.
func (c *Client) GetItem(ctx context.Context, remoteName string) (*Item, error) {
	var it Item
	err := Retry(ctx, defaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(remoteName, nil), nil)
		if err != nil {
			return fmt.Errorf("creating item request: %w", err)
		}
		return c.do(req, &it)
	})
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", remoteName, err)
	}
	return &it, nil
}

// DeleteItem deletes a remote item. A missing item surfaces as [ErrNotFound].
func (c *Client) DeleteItem(ctx context.Context, remoteName string) error {
	extra := url.Values{}
	extra.Set("force", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL(remoteName, extra), nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("deleting item %s: %w", remoteName, err)
	}
	return nil
}

// do executes the request and decodes a JSON response into out (skipped when
// out is nil). Non-2xx statuses become errors; 404 maps to [ErrNotFound].
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
