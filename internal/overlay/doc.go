// Package overlay provisions and updates the OBS scene that displays printer
// telemetry.
//
// Every input is identified by name. Ensure is idempotent: it adopts an input
// that already exists and creates it otherwise, so the scene survives OBS
// restarts and reconnects without duplicating sources. With force recreate
// enabled, existing inputs are removed and rebuilt from their descriptors.
//
// Creation is a fixed sequence of calls (create, transform, z-order, lock),
// each followed by a short backoff so OBS is not flooded while a scene of
// two dozen sources is built.
package overlay
