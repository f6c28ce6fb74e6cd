package client

import (
	"fmt"
	"sync"

	"github.com/easynet-cn/batata/cmd/batata-cli/internal/credentials"
)

// Provider yields a Client backed either by an explicit bearer token or by
// the on-disk credential store populated by `batata-cli login`.
type Provider struct {
	serverURL   string
	bearerToken string

	once   sync.Once
	client *Client
	err    error
}

// NewProvider constructs a Provider bound to serverURL.
func NewProvider(serverURL string) *Provider {
	return &Provider{serverURL: serverURL}
}

// SetBearerToken injects an ephemeral token that bypasses the credential
// store, for scripting and CI.
func (p *Provider) SetBearerToken(token string) {
	p.bearerToken = token
}

// Client returns the shared Client for this invocation, resolving
// credentials once.
func (p *Provider) Client() (*Client, error) {
	p.once.Do(func() {
		if p.bearerToken != "" {
			p.client = New(p.serverURL, p.bearerToken)
			return
		}

		store, err := credentials.NewStore()
		if err != nil {
			p.err = err
			return
		}
		creds, err := store.Load()
		if err != nil {
			p.err = fmt.Errorf("%w", err)
			return
		}
		p.client = New(p.serverURL, creds.AccessToken)
	})
	return p.client, p.err
}
