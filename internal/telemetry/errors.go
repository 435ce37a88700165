package telemetry

import "errors"

// ErrMalformed is returned for payloads that are not a JSON object with at least one key.
var ErrMalformed = errors.New("telemetry: malformed message")
