package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"payengine/internal/domain"
)

// PTTokenPath is the endpoint that issues pt-tokens and challenges.
const PTTokenPath = "/pt-token"

type HTTP struct {
	Base   string
	APIKey string
	HTTP   *http.Client
}

var _ domain.TokenSource = (*HTTP)(nil)

func NewHTTP(base, apiKey string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), APIKey: apiKey, HTTP: http.DefaultClient}
}

// FetchPTToken requests a pt-token and challenge.
func (c *HTTP) FetchPTToken(ctx context.Context) (domain.PTToken, error) {
	var out domain.PTToken
	if err := c.getJSON(ctx, PTTokenPath, &out); err != nil {
		return domain.PTToken{}, err
	}
	if out.Token == "" || out.Challenge == "" {
		return domain.PTToken{}, fmt.Errorf("backend get %s: response missing pt-token or challenge", PTTokenPath)
	}
	return out, nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("backend get %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
