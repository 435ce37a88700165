// Package stage decides when to start or stop the stream, and when to exit,
// from the printer's stage reports.
//
// The Engine is edge-triggered: it remembers the previous stage and reacts to
// the transition into Idle. Actions triggered by going idle are not run at
// once. They are queued and executed by a single deferred task after an
// initial delay, so a brief idle report between jobs does not cut the stream.
// While that queue is non-empty no further idle or resume decisions are made.
package stage
