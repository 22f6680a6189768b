package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"groqchat/internal/config"
	openaiProvider "groqchat/internal/provider/openai"
)

const (
	upstreamName           = "groq"
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	defaultTLSTimeout      = 10 * time.Second
)

// NewUpstream constructs the configured OpenAI-compatible upstream.
func NewUpstream(cfg config.Config) (*openaiProvider.Provider, error) {
	p, err := openaiProvider.New(upstreamName, cfg.Upstream, NewHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("initialise %s upstream: %w", upstreamName, err)
	}
	return p, nil
}

// NewHTTPClient returns a client without an overall request deadline so that
// long completion streams are not cut; connection setup is still bounded.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
