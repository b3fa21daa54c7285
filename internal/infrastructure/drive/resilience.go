package drive

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

// mapDriveError folds transport and HTTP failures onto the domain error
// kinds: 401/403 unauthorized, 404 not found, 408/429/5xx temporary.
// A revoked token surfaces as ErrUnauthorized so the caller can trigger
// re-consent instead of retrying.
func mapDriveError(operation string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	if resp == nil {
		return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("empty response"))
	}

	status := resp.StatusCode()
	if status < 300 {
		return nil
	}

	detail := fmt.Errorf("status %d: %s", status, snippet(resp.String()))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.WrapError(domain.ErrUnauthorized, operation, detail)
	case status == http.StatusNotFound:
		return domain.WrapError(domain.ErrNotFound, operation, detail)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return domain.WrapError(domain.ErrTemporary, operation, detail)
	default:
		return domain.WrapError(domain.ErrInvalidInput, operation, detail)
	}
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 512 {
		return body[:512]
	}
	return body
}
