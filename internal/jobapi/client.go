// Package jobapi is a typed client for the media backend's REST surface. Each
// operation maps to a single request with no retries; failures carry the
// server's own message when one is available.
package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultAPIPrefix      = "/api"
	DefaultProgressPrefix = "/ws/progress"
	DefaultHealthPath     = "/health"
	DefaultTimeout        = 5 * time.Minute
	maxErrorBody          = 64 << 10
)

// Config controls the backend client.
type Config struct {
	BaseURL        string
	APIPrefix      string
	ProgressPrefix string
	HealthPath     string
	Timeout        time.Duration
	UserAgent      string
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client talks to the media backend.
type Client struct {
	base           *url.URL
	baseURL        string
	apiPrefix      string
	progressPrefix string
	healthPath     string
	userAgent      string
	http           *http.Client
	logger         *zap.Logger
}

// New creates a Client, applying defaults for unset fields.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:           base,
		baseURL:        baseURL,
		apiPrefix:      normalizePrefix(cfg.APIPrefix, DefaultAPIPrefix),
		progressPrefix: normalizePrefix(cfg.ProgressPrefix, DefaultProgressPrefix),
		healthPath:     normalizePrefix(cfg.HealthPath, DefaultHealthPath),
		userAgent:      cfg.UserAgent,
		http:           client,
		logger:         logger.Named("jobapi"),
	}, nil
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchMetadata returns the metadata the backend extracts for rawURL.
func (c *Client) FetchMetadata(ctx context.Context, rawURL string) (media.VideoInfo, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return media.VideoInfo{}, media.ErrEmptyURL
	}
	var info media.VideoInfo
	err := c.doJSON(ctx, "fetch_metadata", http.MethodPost, c.endpoint("/video/info"), map[string]string{"url": rawURL}, &info)
	return info, err
}

// RequestDownload asks for a direct download and returns the open stream.
func (c *Client) RequestDownload(ctx context.Context, req media.DownloadRequest) (*media.Download, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, media.ErrEmptyURL
	}
	return c.openStream(ctx, "request_download", http.MethodPost, c.endpoint("/video/download"), req)
}

// ListFormats returns the quality labels the backend supports.
func (c *Client) ListFormats(ctx context.Context) (media.FormatCatalog, error) {
	var catalog media.FormatCatalog
	err := c.doJSON(ctx, "list_formats", http.MethodGet, c.endpoint("/video/formats"), nil, &catalog)
	return catalog, err
}

// EnqueueBatch adds items to the batch queue.
func (c *Client) EnqueueBatch(ctx context.Context, items []media.BatchRequest) (media.EnqueueResult, error) {
	if err := media.ValidateBatch(items); err != nil {
		return media.EnqueueResult{}, err
	}
	var result media.EnqueueResult
	err := c.doJSON(ctx, "enqueue_batch", http.MethodPost, c.endpoint("/batch/add"), items, &result)
	return result, err
}

// GetQueue returns the current queue snapshot.
func (c *Client) GetQueue(ctx context.Context) (media.QueueSnapshot, error) {
	var snap media.QueueSnapshot
	err := c.doJSON(ctx, "get_queue", http.MethodGet, c.endpoint("/batch/queue"), nil, &snap)
	return snap, err
}

// StartBatch starts processing pending items.
func (c *Client) StartBatch(ctx context.Context) (media.MessageResponse, error) {
	return c.message(ctx, "start_batch", http.MethodPost, c.endpoint("/batch/start"))
}

// CancelItem cancels one item.
func (c *Client) CancelItem(ctx context.Context, id string) (media.MessageResponse, error) {
	return c.itemAction(ctx, "cancel_item", id, "cancel")
}

// PauseItem pauses one pending item.
func (c *Client) PauseItem(ctx context.Context, id string) (media.MessageResponse, error) {
	return c.itemAction(ctx, "pause_item", id, "pause")
}

// ResumeItem resumes one paused item.
func (c *Client) ResumeItem(ctx context.Context, id string) (media.MessageResponse, error) {
	return c.itemAction(ctx, "resume_item", id, "resume")
}

// ClearCompleted removes completed items from the queue.
func (c *Client) ClearCompleted(ctx context.Context) (media.MessageResponse, error) {
	return c.message(ctx, "clear_completed", http.MethodDelete, c.endpoint("/batch/clear/completed"))
}

// ClearAll removes every item from the queue.
func (c *Client) ClearAll(ctx context.Context) (media.MessageResponse, error) {
	return c.message(ctx, "clear_all", http.MethodDelete, c.endpoint("/batch/clear/all"))
}

// DownloadItemURL builds the download URL of a batch item. It performs no I/O.
func (c *Client) DownloadItemURL(id string) string {
	return c.endpoint("/batch/item/" + url.PathEscape(id) + "/download")
}

// OpenDownload streams any download URL produced by DownloadItemURL.
func (c *Client) OpenDownload(ctx context.Context, rawURL string) (*media.Download, error) {
	return c.openStream(ctx, "download_item", http.MethodGet, rawURL, nil)
}

// OpenItemDownload streams the file of a completed batch item.
func (c *Client) OpenItemDownload(ctx context.Context, id string) (*media.Download, error) {
	return c.OpenDownload(ctx, c.DownloadItemURL(id))
}

// Ping checks the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, "ping", http.MethodGet, c.baseURL+c.healthPath, nil, nil)
}

// ProgressChannelURL builds the push channel URL for a session token.
func (c *Client) ProgressChannelURL(token string) string {
	scheme := "ws"
	if c.base.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + c.base.Host + strings.TrimRight(c.base.EscapedPath(), "/") +
		c.progressPrefix + "/" + url.PathEscape(token)
}

func (c *Client) itemAction(ctx context.Context, op, id, action string) (media.MessageResponse, error) {
	if strings.TrimSpace(id) == "" {
		return media.MessageResponse{}, errors.New("item id is required")
	}
	return c.message(ctx, op, http.MethodPost, c.endpoint("/batch/item/"+url.PathEscape(id)+"/"+action))
}

func (c *Client) message(ctx context.Context, op, method, target string) (media.MessageResponse, error) {
	var resp media.MessageResponse
	err := c.doJSON(ctx, op, method, target, nil, &resp)
	return resp, err
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + c.apiPrefix + path
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, body, out any) error {
	resp, err := c.send(ctx, op, method, target, body)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body, c.logger)
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) openStream(ctx context.Context, op, method, target string, body any) (*media.Download, error) {
	resp, err := c.send(ctx, op, method, target, body)
	if err != nil {
		return nil, err
	}
	disposition := resp.Header.Get("Content-Disposition")
	contentType := resp.Header.Get("Content-Type")
	return &media.Download{
		Body:          resp.Body,
		Filename:      media.FilenameFromHeaders(disposition, contentType),
		ContentType:   contentType,
		Disposition:   disposition,
		ContentLength: resp.ContentLength,
	}, nil
}

// send performs the request and returns the response only for 2xx statuses.
func (c *Client) send(ctx context.Context, op, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(op, 0, time.Since(start))
		c.logger.Debug("backend request failed", zap.String("op", op), zap.Error(err))
		return nil, &TransportError{Op: op, Err: err}
	}
	metrics.ObserveAPIRequest(op, resp.StatusCode, time.Since(start))
	c.logger.Debug("backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer closeBody(resp.Body, c.logger)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(op, resp.StatusCode, data)
	}
	return resp, nil
}

func closeBody(body io.Closer, logger *zap.Logger) {
	if err := body.Close(); err != nil {
		logger.Debug("close response body", zap.Error(err))
	}
}

func normalizePrefix(prefix, def string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = def
	}
	if prefix == "/" {
		return ""
	}
	return "/" + strings.Trim(prefix, "/")
}
