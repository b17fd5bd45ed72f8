package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"compass/internal/platform/config"
)

// TwoFactorStatus is the capability consumed from the external identity
// provider. The provider owns the 2FA implementation; we only read state.
type TwoFactorStatus struct {
	Enabled bool     `json:"enabled"`
	Methods []string `json:"methods"`
}

// IdentityProvider looks up second-factor state for an external identity.
type IdentityProvider interface {
	TwoFactorStatus(ctx context.Context, externalID string) (*TwoFactorStatus, error)
}

// IdentityClient is the HTTP implementation against the hosted provider.
type IdentityClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewIdentityClient(cfg config.IdentityConfig) *IdentityClient {
	return &IdentityClient{
		baseURL:  cfg.ProviderURL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *IdentityClient) TwoFactorStatus(ctx context.Context, externalID string) (*TwoFactorStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/two_factor", c.baseURL, url.PathEscape(externalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var status TwoFactorStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	if status.Methods == nil {
		status.Methods = []string{}
	}

	return &status, nil
}
