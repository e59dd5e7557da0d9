package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// statusCoder is implemented by client errors that carry the HTTP status
// of a failed response, such as *jina.StatusError.
type statusCoder interface {
	HTTPStatus() int
}

// IsTransient reports whether err is worth retrying: a retryable HTTP
// status from the model API or the Jina Reader, a network timeout, or a
// dropped connection. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return TransientStatus(sc.HTTPStatus())
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return TransientStatus(apiErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range droppedConnection {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// droppedConnection matches transport failures that reach us only as text.
var droppedConnection = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"server closed idle connection",
	"temporary failure in name resolution",
}

// TransientStatus reports whether an HTTP status is worth retrying. 529 is
// the model API's overloaded status.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	}
	return false
}
