// Package pipeline carries inbound printer messages from the MQTT callback to
// a single processing goroutine.
//
// The MQTT client delivers messages on its own goroutine and must never block,
// so Push is non-blocking. The queue is small and bounded: when it is full the
// oldest buffered message is evicted, because only the most recent printer
// state matters for display. Exactly one Consumer pops and processes messages,
// which makes it the only writer to the overlay.
package pipeline
