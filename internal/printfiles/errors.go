package printfiles

import "errors"

// Sentinel errors for print file lookups.
var (
	// ErrNotFound is returned when no print file matches the job name.
	ErrNotFound = errors.New("printfiles: file not found")

	// ErrNoThumbnail is returned when the archive has no preview for the plate.
	ErrNoThumbnail = errors.New("printfiles: archive has no plate preview")

	// ErrNoWeight is returned when the slicer summary has no filament weight.
	ErrNoWeight = errors.New("printfiles: archive has no filament weight")
)
