package overlay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/printcast/internal/obs"
)

// Defaults for reconciler timings.
const (
	DefaultBackoff           = 100 * time.Millisecond
	DefaultMediaPollInterval = time.Second
)

// Service is the obs-websocket surface the reconciler uses.
// *obs.Client implements it.
type Service interface {
	GetVideoSettings(ctx context.Context) (obs.VideoSettings, error)
	SetVideoSettings(ctx context.Context, vs obs.VideoSettings) error
	GetSceneList(ctx context.Context) ([]obs.Scene, error)
	CreateScene(ctx context.Context, name string) error
	SetCurrentProgramScene(ctx context.Context, name string) error
	GetInputList(ctx context.Context) ([]obs.Input, error)
	GetInputSettings(ctx context.Context, name string) (*obs.InputSettings, error)
	SetInputSettings(ctx context.Context, name string, settings map[string]any, overlay bool) error
	CreateInput(ctx context.Context, scene, name, kind string, settings map[string]any, enabled bool) (int, error)
	RemoveInput(ctx context.Context, name string) error
	GetSceneItemID(ctx context.Context, scene, source string) (int, error)
	GetSceneItemTransform(ctx context.Context, scene string, itemID int) (obs.Transform, error)
	SetSceneItemTransform(ctx context.Context, scene string, itemID int, t obs.Transform) error
	SetSceneItemIndex(ctx context.Context, scene string, itemID, index int) error
	SetSceneItemLocked(ctx context.Context, scene string, itemID int, locked bool) error
	GetMediaInputState(ctx context.Context, name string) (string, error)
	StreamActive(ctx context.Context) (bool, error)
	RecordActive(ctx context.Context) (bool, error)
	VirtualCamActive(ctx context.Context) (bool, error)
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
}

var _ Service = (*obs.Client)(nil)

// Logger is the logging surface the reconciler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Reconciler.
type Options struct {
	Service Service

	// Scene receives every input.
	Scene string

	// StreamSource is the name of the camera feed input.
	StreamSource string

	// SDPPath is the ffmpeg SDP file for the camera feed.
	SDPPath string

	// ForceRecreate removes and rebuilds inputs that already exist.
	ForceRecreate bool

	// LockInputs locks created scene items in the OBS editor.
	LockInputs bool

	Backoff           time.Duration
	MediaPollInterval time.Duration

	Logger Logger
}

// Reconciler brings OBS inputs in line with their descriptors.
//
// Thread Safety: the created set is guarded; Handles are not, and must be
// mutated from a single goroutine.
type Reconciler struct {
	svc    Service
	opts   Options
	logger Logger

	mu      sync.Mutex
	created map[string]int
}

// NewReconciler creates a reconciler.
func NewReconciler(opts Options) *Reconciler {
	if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.MediaPollInterval == 0 {
		opts.MediaPollInterval = DefaultMediaPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reconciler{
		svc:     opts.Service,
		opts:    opts,
		logger:  logger,
		created: make(map[string]int),
	}
}

// Ensure makes sure an input matching d exists and returns its handle.
//
// An existing input is adopted unless force recreate is set. Adopted image
// inputs have their file reset to d.IconPath when it differs.
func (r *Reconciler) Ensure(ctx context.Context, d Descriptor) (*Handle, error) {
	existing, err := r.svc.GetInputSettings(ctx, d.Name)
	switch {
	case err == nil:
		if !r.opts.ForceRecreate {
			return r.adopt(ctx, d, existing)
		}
		r.logger.Info("removing input for recreation", "input", d.Name)
		if err := r.svc.RemoveInput(ctx, d.Name); err != nil {
			return nil, fmt.Errorf("removing input %s: %w", d.Name, err)
		}
		if err := r.backoff(ctx); err != nil {
			return nil, err
		}
	case obs.IsNotFound(err):
		if r.CreatedCount(d.Name) > 0 {
			r.logger.Warn("input removed outside printcast, recreating", "input", d.Name)
		}
	default:
		return nil, fmt.Errorf("inspecting input %s: %w", d.Name, err)
	}

	return r.create(ctx, d)
}

func (r *Reconciler) adopt(ctx context.Context, d Descriptor, existing *obs.InputSettings) (*Handle, error) {
	h := &Handle{
		Name:       d.Name,
		Descriptor: d,
		settings:   maps.Clone(existing.Settings),
	}
	if h.settings == nil {
		h.settings = map[string]any{}
	}

	if d.Kind == KindImage && d.IconPath != "" {
		if current, _ := h.settings["file"].(string); current != d.IconPath {
			r.logger.Debug("resetting icon", "input", d.Name, "file", d.IconPath)
			if err := r.svc.SetInputSettings(ctx, d.Name, map[string]any{"file": d.IconPath}, true); err != nil {
				return nil, fmt.Errorf("resetting icon %s: %w", d.Name, err)
			}
			h.settings["file"] = d.IconPath
			if err := r.backoff(ctx); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

func (r *Reconciler) create(ctx context.Context, d Descriptor) (*Handle, error) {
	r.logger.Info("creating input", "input", d.Name, "kind", d.Kind.String())

	settings := d.inputSettings()
	scene := r.opts.Scene

	id, err := r.svc.CreateInput(ctx, scene, d.Name, d.Kind.InputKind(), settings, true)
	if err != nil {
		return nil, fmt.Errorf("creating input %s: %w", d.Name, err)
	}
	r.markCreated(d.Name)
	if err := r.backoff(ctx); err != nil {
		return nil, err
	}

	// A media source only accepts a transform once it is playing.
	if d.Kind == KindVideo {
		if err := r.waitForPlayback(ctx, d.Name); err != nil {
			return nil, err
		}
	}

	if err := r.svc.SetSceneItemTransform(ctx, scene, id, d.transform()); err != nil {
		return nil, fmt.Errorf("positioning %s: %w", d.Name, err)
	}
	if err := r.backoff(ctx); err != nil {
		return nil, err
	}

	if err := r.svc.SetSceneItemIndex(ctx, scene, id, d.ZIndex); err != nil {
		return nil, fmt.Errorf("ordering %s: %w", d.Name, err)
	}
	if err := r.backoff(ctx); err != nil {
		return nil, err
	}

	if r.opts.LockInputs {
		if err := r.svc.SetSceneItemLocked(ctx, scene, id, true); err != nil {
			return nil, fmt.Errorf("locking %s: %w", d.Name, err)
		}
		if err := r.backoff(ctx); err != nil {
			return nil, err
		}
	}

	return &Handle{
		Name:       d.Name,
		Descriptor: d,
		settings:   settings,
	}, nil
}

// waitForPlayback polls until the media input reports playing.
func (r *Reconciler) waitForPlayback(ctx context.Context, name string) error {
	for {
		state, err := r.svc.GetMediaInputState(ctx, name)
		if err != nil {
			return fmt.Errorf("reading media state of %s: %w", name, err)
		}
		if state == obs.MediaStatePlaying {
			return nil
		}
		r.logger.Info("waiting for camera stream to start (is LAN liveview enabled on the printer?)",
			"input", name, "state", state)
		if err := sleep(ctx, r.opts.MediaPollInterval); err != nil {
			return err
		}
	}
}

// UpdateText sets the text of a text input. A nil handle is logged and
// ignored; an unchanged value is not sent.
func (r *Reconciler) UpdateText(ctx context.Context, h *Handle, text string) error {
	if h == nil {
		r.logger.Warn("update of an unprovisioned text input ignored")
		return nil
	}
	if current, ok := h.settings["text"].(string); ok && current == text {
		return nil
	}
	if err := r.svc.SetInputSettings(ctx, h.Name, map[string]any{"text": text}, true); err != nil {
		return fmt.Errorf("updating text of %s: %w", h.Name, err)
	}
	h.settings["text"] = text
	return nil
}

// SetIconState shows the enabled or disabled image of a toggle icon.
// A nil handle is logged and ignored; an unchanged state is not sent.
func (r *Reconciler) SetIconState(ctx context.Context, h *Handle, enabled bool) error {
	if h == nil {
		r.logger.Warn("update of an unprovisioned icon ignored")
		return nil
	}
	path := h.Descriptor.IconPath
	if enabled {
		path = h.Descriptor.EnabledIconPath
	}
	if current, ok := h.settings["file"].(string); ok && current == path {
		return nil
	}
	return r.setFile(ctx, h, path)
}

// ReloadImage re-sends the current file of an image input so OBS rereads it
// after the file changed on disk.
func (r *Reconciler) ReloadImage(ctx context.Context, h *Handle) error {
	if h == nil {
		r.logger.Warn("reload of an unprovisioned image ignored")
		return nil
	}
	path, _ := h.settings["file"].(string)
	if path == "" {
		path = h.Descriptor.IconPath
	}
	return r.setFile(ctx, h, path)
}

func (r *Reconciler) setFile(ctx context.Context, h *Handle, path string) error {
	if err := r.svc.SetInputSettings(ctx, h.Name, map[string]any{"file": path}, true); err != nil {
		return fmt.Errorf("updating image of %s: %w", h.Name, err)
	}
	h.settings["file"] = path
	return nil
}

// CreatedCount returns how many times this process created the named input.
func (r *Reconciler) CreatedCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created[name]
}

func (r *Reconciler) markCreated(name string) {
	r.mu.Lock()
	r.created[name]++
	r.mu.Unlock()
}

// StreamActive reports whether OBS is streaming.
func (r *Reconciler) StreamActive(ctx context.Context) (bool, error) {
	return r.svc.StreamActive(ctx)
}

// StartStream starts the OBS stream output.
func (r *Reconciler) StartStream(ctx context.Context) error {
	return r.svc.StartStream(ctx)
}

// StopStream stops the OBS stream output.
func (r *Reconciler) StopStream(ctx context.Context) error {
	return r.svc.StopStream(ctx)
}

func (r *Reconciler) backoff(ctx context.Context) error {
	return sleep(ctx, r.opts.Backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isCancelled reports whether err stems from context cancellation.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
