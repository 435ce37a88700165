// Package obs keeps printcast's obs-websocket v5 session alive.
//
// The wire protocol (Hello / Identify with challenge-response auth, request
// correlation, events) is goobs. This package adds what goobs leaves to the
// caller: reconnecting every RetryInterval, noticing a dead session, bounding
// each request by a context and a timeout, and mapping failures onto
// RequestError, ErrClosed and ErrAuthFailed. The typed requests cover the
// scene, input and output calls printcast needs.
//
// Usage:
//
//	client := obs.NewClient(obs.Options{URL: "ws://localhost:4455", Password: pw})
//	client.SetOnConnect(func(ctx context.Context) { ... })
//	go client.Run(ctx)
package obs
