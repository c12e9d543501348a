// Package fetch retrieves raw script bytes over plain HTTP. It is the
// secondary fetch strategy behind the in-page browser request.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Config holds fetcher configuration.
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool
	RequestsPerSecond   float64
	MaxBodyBytes        int64
}

// DefaultConfig returns tuned defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		SkipTLSVerify:       true,
		RequestsPerSecond:   5,
		MaxBodyBytes:        20 * 1024 * 1024,
	}
}

// Client downloads script bytes with decompression and request pacing.
type Client struct {
	client       *http.Client
	userAgent    string
	headers      map[string]string
	limiter      *rate.Limiter
	maxBodyBytes int64
	log          *logger.Logger
}

// New creates a fetch client.
func New(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Global()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
		// Bodies are decompressed manually so brotli responses work
		// the same as gzip ones.
		DisableCompression: true,
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 20 * 1024 * 1024
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		userAgent:    config.UserAgent,
		headers:      config.Headers,
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxBodyBytes: maxBody,
		log:          log.WithComponent("fetch"),
	}
}

// Fetch downloads one script URL and returns its decoded bytes. Non-2xx
// responses and transport failures come back as typed errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewCancelledError(rawURL, "fetch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.New(errors.Network, rawURL, "fetch", "invalid request", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewHTTPStatusError(rawURL, resp.StatusCode)
	}

	body, err := decodeBody(resp, c.maxBodyBytes)
	if err != nil {
		return nil, errors.NewDecodeError(rawURL, "fetch", err)
	}

	c.log.WithURL(rawURL).Debugf("Fetched %d bytes", len(body))
	return body, nil
}

// decodeBody decompresses the response body per its Content-Encoding.
func decodeBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	return io.ReadAll(io.LimitReader(reader, maxBytes))
}
