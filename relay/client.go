package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gabriel-vasile/mimetype"

	"github.com/access-assistant/backend/advisor"
	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/metrics"
)

// ClientConfig configures image fetching
type ClientConfig struct {
	// RelayURL is the image proxy endpoint. When empty, images are fetched from their origin.
	RelayURL string
	Timeout  time.Duration
	MaxBytes int64
	// AllowPrivate lets direct fetches reach loopback, private and link-local
	// addresses. Requests to the configured relay are never restricted.
	AllowPrivate bool
	// Transport is used for outgoing requests when set.
	Transport http.RoundTripper
}

// Client resolves an <img> src to image bytes
type Client struct {
	httpClient   *http.Client
	relay        *url.URL
	maxBytes     int64
	allowPrivate bool
	logger       log.Interface
}

// NewClient creates a Client. It fails only when RelayURL is set but not an absolute URL.
func NewClient(cfg ClientConfig, logger log.Interface) (*Client, error) {
	if logger == nil {
		logger = log.Log
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	c := &Client{
		maxBytes:     cfg.MaxBytes,
		allowPrivate: cfg.AllowPrivate || cfg.RelayURL != "",
		logger:       logger,
	}
	if cfg.RelayURL != "" {
		u, err := url.Parse(cfg.RelayURL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("invalid relay URL %q", cfg.RelayURL)
		}
		c.relay = u
	}

	transport := cfg.Transport
	if transport == nil && !c.allowPrivate {
		transport = publicOnlyTransport()
	}
	c.httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	return c, nil
}

// Fetch retrieves the image referenced by src. Relative sources are resolved against
// baseURL; data: URIs are decoded without a network call. Every failure is an
// ImageFetchFailed error carrying the upstream status and body when there was one.
func (c *Client) Fetch(ctx context.Context, src, baseURL string) (*advisor.Image, error) {
	if strings.TrimSpace(src) == "" {
		return nil, apperr.New(apperr.ImageFetchFailed, "image source is empty")
	}

	if strings.HasPrefix(strings.ToLower(src), "data:") {
		img, err := decodeDataURI(src)
		if err != nil {
			metrics.RelayFetchesTotal.WithLabelValues("data", "rejected").Inc()
			return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "invalid data URI")
		}
		metrics.RelayFetchesTotal.WithLabelValues("data", "ok").Inc()
		return img, nil
	}

	target, err := resolve(src, baseURL)
	if err != nil {
		metrics.RelayFetchesTotal.WithLabelValues(c.mode(), "rejected").Inc()
		return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "cannot resolve image source")
	}
	if !c.allowPrivate {
		if err := checkHost(target.Hostname()); err != nil {
			metrics.RelayFetchesTotal.WithLabelValues(c.mode(), "rejected").Inc()
			return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "image source is not a public address")
		}
	}

	return c.fetch(ctx, src, target)
}

func (c *Client) mode() string {
	if c.relay != nil {
		return "relay"
	}
	return "direct"
}

func (c *Client) requestURL(target *url.URL) string {
	if c.relay == nil {
		return target.String()
	}
	u := *c.relay
	q := u.Query()
	q.Set("url", target.String())
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) fetch(ctx context.Context, src string, target *url.URL) (*advisor.Image, error) {
	mode := c.mode()
	start := time.Now()
	logger := c.logger.WithFields(log.Fields{
		"src":  src,
		"url":  target.String(),
		"mode": mode,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(target), nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "could not build image request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RelayFetchesTotal.WithLabelValues(mode, "transport_error").Inc()
		logger.WithError(err).Warn("image fetch failed")
		return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "could not reach image source")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		metrics.RelayFetchesTotal.WithLabelValues(mode, "upstream_error").Inc()
		logger.WithField("status", resp.StatusCode).Warn("image fetch refused")

		text := strings.TrimSpace(string(detail))
		if text == "" {
			text = statusText(resp)
		}
		return nil, apperr.Newf(apperr.ImageFetchFailed, "image fetch returned %d", resp.StatusCode).
			WithStatus(resp.StatusCode, text)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		metrics.RelayFetchesTotal.WithLabelValues(mode, "transport_error").Inc()
		return nil, apperr.Wrap(err, apperr.ImageFetchFailed, "could not read image body")
	}
	if int64(len(data)) > c.maxBytes {
		metrics.RelayFetchesTotal.WithLabelValues(mode, "too_large").Inc()
		return nil, apperr.Newf(apperr.ImageFetchFailed, "image exceeds %d bytes", c.maxBytes)
	}
	if len(data) == 0 {
		metrics.RelayFetchesTotal.WithLabelValues(mode, "upstream_error").Inc()
		return nil, apperr.New(apperr.ImageFetchFailed, "image body is empty")
	}

	mimeType := contentType(resp.Header.Get("Content-Type"), data)

	metrics.RelayFetchesTotal.WithLabelValues(mode, "ok").Inc()
	logger.WithFields(log.Fields{
		"bytes":    len(data),
		"mimeType": mimeType,
	}).WithDuration(time.Since(start)).Debug("image fetched")

	return &advisor.Image{Data: data, MimeType: mimeType, Source: src}, nil
}

// resolve turns src into an absolute http(s) URL. The src itself is not normalized.
func resolve(src, baseURL string) (*url.URL, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("relative image source %q needs a base URL", src)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// contentType keeps a declared image/* type and sniffs anything missing or generic
func contentType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	detected := mimetype.Detect(data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	return detected
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>
func decodeDataURI(uri string) (*advisor.Image, error) {
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("data URI has no payload separator")
	}

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}

	var data []byte
	if isBase64 {
		var err error
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
				return nil, fmt.Errorf("decode base64 payload: %w", err)
			}
		}
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		data = []byte(unescaped)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("data URI is empty")
	}

	return &advisor.Image{Data: data, MimeType: contentType(meta, data), Source: uri}, nil
}
