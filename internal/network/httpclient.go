// internal/network/httpclient.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
)

// Defaults for talking to a single automation server, usually on the same host.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 0 // observations of large pages can take a while
	DefaultRequestTimeout        = 60 * time.Second

	DefaultMaxIdleConns        = 16
	DefaultMaxIdleConnsPerHost = 8
	DefaultIdleConnTimeout     = 90 * time.Second
)

// ClientConfig holds the settings for the HTTP client used by the transport client.
type ClientConfig struct {
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config

	// RequestTimeout bounds a whole request including reading the body. Zero disables it.
	RequestTimeout        time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// EnableHTTP2 negotiates h2 over TLS. Plain-http servers are unaffected.
	EnableHTTP2 bool
	// DisableCompression stops the client from advertising and decoding
	// compressed responses.
	DisableCompression bool

	Logger *zap.Logger
}

// NewDefaultClientConfig returns settings suitable for a local automation server.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:        DefaultRequestTimeout,
		DialTimeout:           DefaultDialTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		EnableHTTP2:           true,
	}
}

// ClientConfigFromServer derives client settings from the server section of the config.
func ClientConfigFromServer(cfg config.ServerConfig, logger *zap.Logger) *ClientConfig {
	c := NewDefaultClientConfig()
	c.RequestTimeout = cfg.RequestTimeout
	c.Logger = logger
	return c
}

// NewHTTPTransport builds the base round tripper. Compression is handled by
// CompressionMiddleware, so the stdlib transparent gzip is switched off here.
func NewHTTPTransport(cfg *ClientConfig) *http.Transport {
	if cfg == nil {
		cfg = NewDefaultClientConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       configureTLS(cfg),
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableCompression:    true,
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(transport.TLSClientConfig.NextProtos) == 0 {
		transport.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}
	return transport
}

// NewClient returns an *http.Client wired with the configured transport and,
// unless disabled, the decompression middleware. Redirects are followed.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = NewDefaultClientConfig()
	}
	var rt http.RoundTripper = NewHTTPTransport(cfg)
	if !cfg.DisableCompression {
		rt = NewCompressionMiddleware(rt)
	}
	return &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
	}
}

func configureTLS(cfg *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(64),
		}
	}
	tlsConfig.InsecureSkipVerify = cfg.IgnoreTLSErrors
	return tlsConfig
}
