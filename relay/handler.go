// Package relay fetches remote images on behalf of the fix workflow.
//
// The Handler is the HTTP image proxy (GET /api/image-proxy?url=...) browsers use to
// get around cross-origin restrictions. The Client resolves an <img> src to image bytes,
// either through such a proxy or straight from the origin.
package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/access-assistant/backend/metrics"
)

// DefaultMaxBytes caps the size of a relayed image
const DefaultMaxBytes int64 = 10 << 20

// HandlerConfig configures the image proxy endpoint
type HandlerConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	// AllowedHosts restricts the origins the proxy will contact. Empty allows any host.
	AllowedHosts []string
	// AllowPrivate lets the proxy contact loopback, private and link-local addresses.
	// Off by default, so the proxy cannot be pointed at internal services.
	AllowPrivate bool
	// Transport is used for upstream requests when set; tests point it at fakes.
	// A custom transport only gets the IP literal check, not the resolved-address one.
	Transport http.RoundTripper
}

// Handler proxies image requests to their origin and mirrors the response
type Handler struct {
	client       *http.Client
	maxBytes     int64
	allowed      map[string]struct{}
	allowPrivate bool
	logger       log.Interface
}

// NewHandler creates the image proxy handler
func NewHandler(cfg HandlerConfig, logger log.Interface) *Handler {
	if logger == nil {
		logger = log.Log
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedHosts) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedHosts))
		for _, h := range cfg.AllowedHosts {
			allowed[strings.ToLower(h)] = struct{}{}
		}
	}

	transport := cfg.Transport
	if transport == nil && !cfg.AllowPrivate {
		transport = publicOnlyTransport()
	}

	return &Handler{
		client:       &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxBytes:     cfg.MaxBytes,
		allowed:      allowed,
		allowPrivate: cfg.AllowPrivate,
		logger:       logger,
	}
}

// ServeImage handles GET ?url=<absolute image url>
func (h *Handler) ServeImage(c *gin.Context) {
	imageURL := c.Query("url")
	if imageURL == "" {
		c.String(http.StatusBadRequest, "Image URL is required")
		return
	}

	target, err := url.Parse(imageURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "rejected").Inc()
		c.String(http.StatusBadRequest, "Image URL must be an absolute http(s) URL")
		return
	}
	if !h.hostAllowed(target.Hostname()) || (!h.allowPrivate && checkHost(target.Hostname()) != nil) {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "rejected").Inc()
		c.String(http.StatusForbidden, "Image host is not allowed")
		return
	}

	logger := h.logger.WithFields(log.Fields{
		"url":    imageURL,
		"client": c.ClientIP(),
	})

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error fetching image: %s", err.Error())
		return
	}

	resp, err := h.client.Do(req)
	if errors.Is(err, ErrPrivateAddress) {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "rejected").Inc()
		logger.Warn("Image proxy refused a non-public address")
		c.String(http.StatusForbidden, "Image host is not allowed")
		return
	}
	if err != nil {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "transport_error").Inc()
		logger.WithError(err).Warn("Image proxy error")
		c.String(http.StatusInternalServerError, "Error fetching image: %s", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "upstream_error").Inc()
		logger.WithField("status", resp.StatusCode).Info("Upstream refused image")
		c.String(resp.StatusCode, "Failed to fetch image: %s", statusText(resp))
		return
	}

	if resp.ContentLength > h.maxBytes {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "too_large").Inc()
		c.String(http.StatusBadGateway, "Error fetching image: image exceeds %d bytes", h.maxBytes)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "transport_error").Inc()
		c.String(http.StatusInternalServerError, "Error fetching image: %s", err.Error())
		return
	}
	if int64(len(body)) > h.maxBytes {
		metrics.RelayFetchesTotal.WithLabelValues("proxy", "too_large").Inc()
		c.String(http.StatusBadGateway, "Error fetching image: image exceeds %d bytes", h.maxBytes)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		c.Header("Content-Length", cl)
	}

	metrics.RelayFetchesTotal.WithLabelValues("proxy", "ok").Inc()
	logger.WithField("bytes", len(body)).Debug("Image relayed")
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) hostAllowed(host string) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[strings.ToLower(host)]
	return ok
}

// statusText returns the reason phrase of resp, e.g. "Not Found"
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
