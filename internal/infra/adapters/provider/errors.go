package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
)

const maxErrorBody = 4 << 10

// classifyError converts low-level transport errors into the domain taxonomy.
// Connection refusal is kept distinct so callers can ask "is it running?".
func classifyError(p model.ProviderID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s did not answer in time", domain.ErrTimeout, p)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s did not answer in time", domain.ErrTimeout, p)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection to %s refused, is %s running?", domain.ErrConnection, p, p)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: cannot resolve %s host %q", domain.ErrConnection, p, dnsErr.Name)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %s: %v", domain.ErrConnection, p, opErr.Err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConnection, p, err)
}

// checkResponse maps a non-2xx response to ErrAuth or *domain.UpstreamError
// carrying the body as diagnostic text. It does not close the body.
func checkResponse(p model.ProviderID, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return statusError(p, resp.StatusCode, strings.TrimSpace(string(body)))
}

func statusError(p model.ProviderID, status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s answered %d: %s", domain.ErrAuth, p, status, body)
	}
	return &domain.UpstreamError{Provider: string(p), StatusCode: status, Body: body}
}
