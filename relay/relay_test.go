package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/access-assistant/backend/apperr"
)

var quiet = &log.Logger{Handler: discard.New(), Level: log.ErrorLevel}

func init() {
	gin.SetMode(gin.TestMode)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// newOrigin serves a PNG at /img/a.png, a typeless PNG at /raw, a large body at /big and
// 404 for everything else.
func newOrigin(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	data := pngBytes(t)
	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/img/a.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/raw":
			w.Header()["Content-Type"] = nil
			w.Write(data)
		case "/octet":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(data)
		case "/big":
			w.Header().Set("Content-Type", "image/png")
			w.Write(bytes.Repeat([]byte{0x89}, 100))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newProxy(t *testing.T, cfg HandlerConfig) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.GET("/api/image-proxy", NewHandler(cfg, quiet).ServeImage)
	return r
}

func proxyGet(r *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	path := "/api/image-proxy"
	if target != "" {
		path += "?url=" + url.QueryEscape(target)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestProxyRequiresURL(t *testing.T) {
	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Image URL is required", w.Body.String())
}

func TestProxyMirrorsImage(t *testing.T) {
	origin, _ := newOrigin(t)

	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true}), origin.URL+"/img/a.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes(t), w.Body.Bytes())
	assert.Equal(t, strconv.Itoa(w.Body.Len()), w.Header().Get("Content-Length"))
}

func TestProxyDefaultsContentType(t *testing.T) {
	origin, _ := newOrigin(t)

	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true}), origin.URL+"/raw")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestProxyMirrorsUpstreamFailure(t *testing.T) {
	origin, _ := newOrigin(t)

	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true}), origin.URL+"/missing.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Failed to fetch image: Not Found", w.Body.String())
}

func TestProxyTransportError(t *testing.T) {
	origin, _ := newOrigin(t)
	dead := origin.URL
	origin.Close()

	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true}), dead+"/img/a.png")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Error fetching image: "), w.Body.String())
}

func TestProxyGuards(t *testing.T) {
	origin, hits := newOrigin(t)

	tests := []struct {
		name   string
		cfg    HandlerConfig
		target string
		status int
	}{
		{"non http scheme", HandlerConfig{AllowPrivate: true}, "ftp://example.com/a.png", http.StatusBadRequest},
		{"relative url", HandlerConfig{AllowPrivate: true}, "/img/a.png", http.StatusBadRequest},
		{"host not allowed", HandlerConfig{AllowPrivate: true, AllowedHosts: []string{"images.example.com"}}, origin.URL + "/img/a.png", http.StatusForbidden},
		{"too large", HandlerConfig{AllowPrivate: true, MaxBytes: 10}, origin.URL + "/big", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := proxyGet(newProxy(t, tt.cfg), tt.target)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	// Only the size check reaches the origin
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestProxyAllowsListedHost(t *testing.T) {
	origin, _ := newOrigin(t)
	u, _ := url.Parse(origin.URL)

	w := proxyGet(newProxy(t, HandlerConfig{AllowPrivate: true, AllowedHosts: []string{strings.ToUpper(u.Hostname())}}), origin.URL+"/img/a.png")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientDirectFetch(t *testing.T) {
	origin, _ := newOrigin(t)
	c, err := NewClient(ClientConfig{AllowPrivate: true}, quiet)
	require.NoError(t, err)

	img, err := c.Fetch(context.Background(), origin.URL+"/img/a.png", "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, pngBytes(t), img.Data)
	assert.Equal(t, origin.URL+"/img/a.png", img.Source)
}

func TestClientResolvesAgainstBaseURL(t *testing.T) {
	origin, _ := newOrigin(t)
	c, err := NewClient(ClientConfig{AllowPrivate: true}, quiet)
	require.NoError(t, err)

	img, err := c.Fetch(context.Background(), "a.png", origin.URL+"/img/post.html")
	require.NoError(t, err)
	assert.Equal(t, "a.png", img.Source)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestClientSniffsGenericContentType(t *testing.T) {
	origin, _ := newOrigin(t)
	c, err := NewClient(ClientConfig{AllowPrivate: true}, quiet)
	require.NoError(t, err)

	img, err := c.Fetch(context.Background(), origin.URL+"/octet", "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestClientThroughRelay(t *testing.T) {
	origin, _ := newOrigin(t)
	proxy := httptest.NewServer(newProxy(t, HandlerConfig{AllowPrivate: true}))
	t.Cleanup(proxy.Close)

	c, err := NewClient(ClientConfig{RelayURL: proxy.URL + "/api/image-proxy"}, quiet)
	require.NoError(t, err)

	img, err := c.Fetch(context.Background(), origin.URL+"/img/a.png", "")
	require.NoError(t, err)
	assert.Equal(t, pngBytes(t), img.Data)

	_, err = c.Fetch(context.Background(), origin.URL+"/missing.png", "")
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.ImageFetchFailed, appErr.Kind)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "Failed to fetch image: Not Found", appErr.Detail)
}

func TestClientFailures(t *testing.T) {
	origin, hits := newOrigin(t)
	c, err := NewClient(ClientConfig{AllowPrivate: true, MaxBytes: 50}, quiet)
	require.NoError(t, err)

	tests := []struct {
		name    string
		src     string
		baseURL string
	}{
		{"empty src", "", ""},
		{"relative without base", "a.png", ""},
		{"unsupported scheme", "ftp://example.com/a.png", ""},
		{"malformed data uri", "data:image/png;base64", ""},
		{"too large", origin.URL + "/big", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := c.Fetch(context.Background(), tt.src, tt.baseURL)
			assert.Nil(t, img)
			assert.True(t, apperr.HasKind(err, apperr.ImageFetchFailed), "got %v", err)
		})
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClientTransportError(t *testing.T) {
	origin, _ := newOrigin(t)
	dead := origin.URL
	origin.Close()

	c, err := NewClient(ClientConfig{AllowPrivate: true}, quiet)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), dead+"/img/a.png", "")
	assert.True(t, apperr.HasKind(err, apperr.ImageFetchFailed), "got %v", err)
}

func TestDecodeDataURI(t *testing.T) {
	c, err := NewClient(ClientConfig{AllowPrivate: true}, quiet)
	require.NoError(t, err)

	img, err := c.Fetch(context.Background(), "data:image/gif;base64,R0lGODlhAQABAAAAACw=", "")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.MimeType)
	assert.Equal(t, []byte("GIF89a"), img.Data[:6])

	img, err = c.Fetch(context.Background(), "data:image/svg+xml,%3Csvg%3E%3C/svg%3E", "")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", img.MimeType)
	assert.Equal(t, "<svg></svg>", string(img.Data))

	raw := base64.StdEncoding.EncodeToString(pngBytes(t))
	img, err = c.Fetch(context.Background(), "data:;base64,"+raw, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestNewClientRejectsRelativeRelay(t *testing.T) {
	_, err := NewClient(ClientConfig{RelayURL: "/api/image-proxy"}, quiet)
	assert.Error(t, err)
}

func TestProxyRefusesNonPublicAddresses(t *testing.T) {
	origin, hits := newOrigin(t)
	u, _ := url.Parse(origin.URL)

	tests := []struct {
		name   string
		target string
	}{
		{"loopback literal", origin.URL + "/img/a.png"},
		{"loopback by name", "http://localhost:" + u.Port() + "/img/a.png"},
		{"metadata address", "http://169.254.169.254/latest/meta-data/"},
		{"private range", "http://10.0.0.1/a.png"},
		{"mapped loopback", "http://[::ffff:127.0.0.1]:" + u.Port() + "/img/a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := proxyGet(newProxy(t, HandlerConfig{}), tt.target)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "Image host is not allowed", w.Body.String())
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestClientRefusesNonPublicAddresses(t *testing.T) {
	origin, hits := newOrigin(t)
	u, _ := url.Parse(origin.URL)

	c, err := NewClient(ClientConfig{}, quiet)
	require.NoError(t, err)

	for _, src := range []string{origin.URL + "/img/a.png", "http://localhost:" + u.Port() + "/img/a.png"} {
		img, err := c.Fetch(context.Background(), src, "")
		assert.Nil(t, img)
		assert.True(t, apperr.HasKind(err, apperr.ImageFetchFailed), "got %v", err)
		assert.ErrorIs(t, err, ErrPrivateAddress)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestPublicAddr(t *testing.T) {
	for _, tt := range []struct {
		addr   string
		public bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"192.168.0.10", false},
		{"169.254.169.254", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
	} {
		assert.Equal(t, tt.public, publicAddr(netip.MustParseAddr(tt.addr)), tt.addr)
	}
}
