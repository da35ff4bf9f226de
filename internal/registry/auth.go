package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
)

// tokenResponse is the JSON body of the token endpoint. Docker Hub returns
// the same value under both fields; some registries only set one.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Token obtains a bearer token scoped to pull access for one repository.
//
// The token is used once per invocation and never cached; any transport or
// decode failure propagates unretried.
func (c *Client) Token(ctx context.Context, repository string) (string, error) {
	u := fmt.Sprintf("%s?service=%s&scope=%s",
		c.opts.AuthURL,
		url.QueryEscape(c.opts.Service),
		url.QueryEscape("repository:"+repository+":pull"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("request pull token for %s: %w", repository, err)
	}
	defer body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("token response for %s contains no token", repository)
	}

	log.Debug("obtained pull token", "repository", repository)
	return token, nil
}
