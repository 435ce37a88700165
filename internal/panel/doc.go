// Package panel serves the printcast status page.
//
// The page is plain HTML and JavaScript embedded into the binary. It polls
// /api/v1/status and /api/v1/jobs/ and follows the printer.status and
// print.job channels of the /api/v1/ws live feed. The status API mounts it
// at "/".
package panel
