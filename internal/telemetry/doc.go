// Package telemetry turns printer report messages into overlay updates.
//
// Each MQTT payload is parsed into a Snapshot, formatted into display strings
// and applied to the overlay handles through the Display interface. Snapshots
// are rebuilt from every message; the Projector only remembers the last layer
// (to log progress once per layer) and the last print job name (to fetch the
// job's preview image and filament weight when it changes).
//
// The print file lookup talks to the printer over FTPS and can take seconds,
// so it runs in a goroutine owned by the Projector. Its result is applied to
// the overlay on the next processed message, keeping the message consumer the
// only goroutine that mutates overlay sources.
package telemetry
