// Package catalog is the read-only client for the remote catalog API.
package catalog

import (
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/pkg/httpclient"
)

// CredentialParam is the query parameter carrying the API key.
const CredentialParam = "api_key"

const tracerName = "github.com/utafrali/storefront/internal/catalog"

// Client holds the shared connection to the catalog API. It has no request
// state of its own; every caller works through a Session.
type Client struct {
	baseURL string
	apiKey  string
	doer    httpclient.Doer
	logger  *slog.Logger
}

// NewClient creates a catalog client. doer is usually an *httpclient.Client
// built with zero retries, optionally wrapped in a circuit breaker.
func NewClient(baseURL, apiKey string, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		doer:    doer,
		logger:  logger,
	}
}

// NewSession starts an independent query session with its own loading and
// error flags.
func (c *Client) NewSession() *Session {
	return &Session{client: c}
}
