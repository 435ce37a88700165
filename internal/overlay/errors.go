package overlay

import "errors"

// ErrLiveResize is returned when the canvas needs resizing while an output
// (stream, recording or virtual camera) is running. OBS refuses the change.
var ErrLiveResize = errors.New("overlay: cannot change video settings while an output is active; set the canvas and output to 1920x1080")
