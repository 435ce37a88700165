// Package bridge wires printcast together.
//
// A Bridge owns two independent connections: the printer's MQTT telemetry
// feed (supervised by mqtt.Supervisor) and the OBS websocket (owned by
// obs.Client.Run). Reports flow from the MQTT handler into a drop-oldest
// queue, are projected onto the overlay by a single consumer goroutine and
// then drive the stage policy engine.
//
// Optional sinks hang off the projector's observer hook: the SQLite print
// journal, InfluxDB metrics and the status API's live feed.
//
// Shutdown is requested once, from anywhere, with a reason. Failure reasons
// make Run return an error so the process exits non-zero.
package bridge
