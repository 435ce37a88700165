package bridge

import "errors"

var (
	// ErrPrinterAuth is the shutdown cause when the printer rejects the access code.
	ErrPrinterAuth = errors.New("bridge: printer rejected the access code")

	// ErrOBSAuth is the shutdown cause when OBS rejects the websocket password.
	ErrOBSAuth = errors.New("bridge: OBS rejected the websocket password")

	// ErrOBSDisconnected is the shutdown cause when exit_on_obs_disconnect is set.
	ErrOBSDisconnected = errors.New("bridge: OBS disconnected")

	// ErrConsumerStopped is the shutdown cause when message processing ends unexpectedly.
	ErrConsumerStopped = errors.New("bridge: message consumer stopped")
)
