package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
)

// classifyStatus maps an upstream HTTP status to the gateway's error-kind
// taxonomy. bodyPrefix, if non-empty, is included verbatim so callers can
// relay the upstream's own message on 4xx responses.
func classifyStatus(status int, bodyPrefix string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return gwerror.New(gwerror.KindUpstreamAuth, "upstream authentication failed")
	case status == http.StatusNotFound:
		return gwerror.New(gwerror.KindUpstreamNotFound, bodyPrefix)
	case status >= 400 && status < 500:
		return gwerror.New(gwerror.KindUpstreamBadRequest, bodyPrefix)
	case status == http.StatusGatewayTimeout:
		return gwerror.New(gwerror.KindUpstreamTimeout, bodyPrefix)
	case status >= 500:
		return gwerror.New(gwerror.KindUpstreamServer, bodyPrefix)
	default:
		return fmt.Errorf("upstream: unexpected status %d: %s", status, bodyPrefix)
	}
}

// classifyNetworkError maps a transport-level failure (DNS, connection
// refused, context deadline): a context deadline maps to KindUpstreamTimeout,
// every other failure to KindUpstreamServer.
func classifyNetworkError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerror.Wrap(gwerror.KindUpstreamTimeout, "upstream call timed out", err)
	}
	return gwerror.Wrap(gwerror.KindUpstreamServer, "upstream call failed", err)
}
