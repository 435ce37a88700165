package obs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// Sentinel errors for obs-websocket operations.
var (
	// ErrNotConnected is returned when a request is made without an identified session.
	ErrNotConnected = errors.New("obs: not connected")

	// ErrTimeout is returned when a request gets no response in time.
	ErrTimeout = errors.New("obs: request timed out")

	// ErrAuthFailed is returned by Run when the server rejects the password.
	ErrAuthFailed = errors.New("obs: authentication failed")

	// ErrClosed is returned for requests still in flight when the session ends.
	ErrClosed = errors.New("obs: connection closed")
)

// CloseAuthenticationFailed is the close code sent when Identify carries a bad password.
const CloseAuthenticationFailed = 4009

// Request status codes used by printcast.
const (
	StatusSuccess          = 100
	StatusResourceNotFound = 600
)

// RequestError is a request that obs-websocket answered with a failure status.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
	Err         error
}

func (e *RequestError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("obs: %s failed with status %d", e.RequestType, e.Code)
	}
	return fmt.Sprintf("obs: %s failed with status %d: %s", e.RequestType, e.Code, e.Comment)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a "resource not found" request failure.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Code == StatusResourceNotFound
}

// statusPattern finds the request status code goobs puts in its error text,
// e.g. "request GetInputSettings: ResourceNotFound (600): No source was found".
var statusPattern = regexp.MustCompile(`\((\d{3})\)|[Cc]ode[ :=]+(\d{3})\b`)

// requestError converts a goobs request failure. Failures that carry an
// obs-websocket status become *RequestError; anything else is wrapped.
func requestError(requestType string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if m := statusPattern.FindStringSubmatchIndex(msg); m != nil {
		var digits string
		if m[2] >= 0 {
			digits = msg[m[2]:m[3]]
		} else {
			digits = msg[m[4]:m[5]]
		}
		code, _ := strconv.Atoi(digits)
		comment := strings.TrimSpace(strings.TrimPrefix(msg[m[1]:], ":"))
		return &RequestError{RequestType: requestType, Code: code, Comment: comment, Err: err}
	}
	return fmt.Errorf("obs: %s: %w", requestType, err)
}

// closePattern matches the close code in a websocket close error's text, for
// errors that were flattened to a string before reaching us.
var closePattern = regexp.MustCompile(`close (\d{4})`)

// closeCode extracts the websocket close code from err, or 0.
func closeCode(err error) int {
	if err == nil {
		return 0
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	if m := closePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

func disconnectInfo(reason string, err error) DisconnectInfo {
	info := DisconnectInfo{Reason: reason, Err: err}
	if code := closeCode(err); code != 0 {
		info.Code = code
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Text != "" {
			info.Reason = closeErr.Text
		}
	}
	return info
}
