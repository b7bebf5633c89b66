package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
)

// jsonClient is the small request helper shared by the raw-HTTP adapters.
type jsonClient struct {
	provider model.ProviderID
	base     string
	http     *http.Client
	headers  map[string]string
}

func newJSONClient(p model.ProviderID, base string, hc *http.Client, headers map[string]string) jsonClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return jsonClient{provider: p, base: strings.TrimRight(base, "/"), http: hc, headers: headers}
}

// do sends in (JSON-encoded when non-nil) and decodes the response into out
// when out is non-nil.
func (c jsonClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.provider, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %v", domain.ErrConnection, c.provider, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyError(c.provider, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(c.provider, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.UpstreamError{Provider: string(c.provider), StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return nil
}

// raw fetches path and returns the body and its content type.
func (c jsonClient) raw(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: build request: %v", domain.ErrConnection, c.provider, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", classifyError(c.provider, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(c.provider, resp); err != nil {
		return nil, "", err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", classifyError(c.provider, err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(b)
	}
	return b, ct, nil
}
