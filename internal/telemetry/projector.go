package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/printcast/internal/overlay"
	"github.com/nerrad567/printcast/internal/printfiles"
)

// DefaultLookupTimeout bounds one print file lookup.
const DefaultLookupTimeout = 30 * time.Second

// Display applies values to overlay sources. *overlay.Reconciler implements it.
type Display interface {
	UpdateText(ctx context.Context, h *overlay.Handle, text string) error
	SetIconState(ctx context.Context, h *overlay.Handle, enabled bool) error
	ReloadImage(ctx context.Context, h *overlay.Handle) error
}

var _ Display = (*overlay.Reconciler)(nil)

// FileSource finds a job's print file and reads its preview and filament
// weight. *printfiles.Store implements it.
type FileSource interface {
	Locate(ctx context.Context, subtask string) (string, error)
	Thumbnail(ctx context.Context, path string) ([]byte, error)
	Weight(ctx context.Context, path string) (string, error)
}

var _ FileSource = (*printfiles.Store)(nil)

// Observer receives projected state. Calls are made from the goroutine
// running Project and must not block.
type Observer interface {
	StatusProjected(s Snapshot)
	JobChanged(name string)
	JobWeight(name string, grams float64)
}

type noopObserver struct{}

func (noopObserver) StatusProjected(Snapshot)  {}
func (noopObserver) JobChanged(string)         {}
func (noopObserver) JobWeight(string, float64) {}

// Logger is the logging surface the projector needs.
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

// Options configures a Projector.
type Options struct {
	Display Display

	// Files is optional; without it no preview or weight is looked up.
	Files FileSource

	Observer Observer
	Logger   Logger

	// PreviewPath is where the job preview is written; the preview image
	// source shows this file when enabled.
	PreviewPath string

	LookupTimeout time.Duration
}

// lookupResult is what a finished lookup hands back to the consumer.
type lookupResult struct {
	subtask string
	preview bool
	weight  string
}

// Projector maps print reports onto the overlay.
//
// Thread Safety: Project must be called from one goroutine. SetHandles,
// ClearHandles, Ready and Close are safe from any goroutine.
type Projector struct {
	display  Display
	files    FileSource
	observer Observer
	logger   Logger
	opts     Options

	handles  atomic.Pointer[overlay.Handles]
	relookup atomic.Bool
	result   atomic.Pointer[lookupResult]

	// Owned by the Project goroutine.
	lastLayer int
	haveLayer bool
	subtask   string

	mu           sync.Mutex
	closed       bool
	cancelLookup context.CancelFunc
	baseCtx      context.Context
	baseCancel   context.CancelFunc
	wg           sync.WaitGroup
}

// NewProjector creates a projector. It skips messages until SetHandles is called.
func NewProjector(opts Options) *Projector {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	p := &Projector{
		display:  opts.Display,
		files:    opts.Files,
		observer: opts.Observer,
		logger:   opts.Logger,
		opts:     opts,
	}
	if p.observer == nil {
		p.observer = noopObserver{}
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())
	return p
}

// SetHandles installs freshly provisioned overlay handles. The current job's
// preview and weight are looked up again on the next status report, since the
// new sources start blank.
func (p *Projector) SetHandles(h *overlay.Handles) {
	p.handles.Store(h)
	p.relookup.Store(true)
}

// ClearHandles stops display updates until SetHandles is called again.
func (p *Projector) ClearHandles() {
	p.handles.Store(nil)
}

// Ready reports whether overlay handles are installed.
func (p *Projector) Ready() bool {
	return p.handles.Load() != nil
}

// Project parses one MQTT payload and applies it to the overlay.
//
// It returns a nil snapshot for messages that carry no full status and while
// the overlay is not provisioned. Display failures are returned together
// with the snapshot so the caller can still act on the printer state.
func (p *Projector) Project(ctx context.Context, payload []byte) (*Snapshot, error) {
	kind, err := ParseEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if kind != KindPrint {
		p.logger.Debug("ignoring message", "kind", kind)
		return nil, nil
	}

	var msg PrintMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !msg.Print.IsStatusUpdate() {
		return nil, nil
	}

	h := p.handles.Load()
	if h == nil {
		p.logger.Debug("overlay not provisioned, skipping status")
		return nil, nil
	}

	snap := NewSnapshot(msg.Print)
	p.logProgress(snap)

	// A result is applied before trackJob can start another lookup, so a
	// lookup started by this message is never applied by it.
	var errs []error
	errs = append(errs, p.applyLookup(ctx, h))
	errs = append(errs, p.trackJob(ctx, h, snap.SubtaskName))
	errs = append(errs, p.render(ctx, h, snap))

	p.observer.StatusProjected(snap)
	return &snap, errors.Join(errs...)
}

func (p *Projector) logProgress(s Snapshot) {
	if p.haveLayer && s.Layer == p.lastLayer {
		return
	}
	p.haveLayer = true
	p.lastLayer = s.Layer
	p.logger.Info("print progress",
		"layer", s.Layer,
		"total_layers", s.TotalLayers,
		"percent", s.Percent,
		"remaining", FormatRemaining(s.RemainingMinutes),
		"stage", s.Stage.String(),
	)
}

// render writes every display field of the snapshot.
func (p *Projector) render(ctx context.Context, h *overlay.Handles, s Snapshot) error {
	d := p.display
	errs := []error{
		d.UpdateText(ctx, h.ChamberTemp, FormatTemp(s.ChamberTemp)),

		d.UpdateText(ctx, h.BedTemp, FormatNumber(s.BedTemp)),
		d.UpdateText(ctx, h.TargetBedTemp, FormatTargetTemp(s.BedTargetTemp)),
		d.SetIconState(ctx, h.BedTempIcon, s.BedTargetTemp > 0),

		d.UpdateText(ctx, h.NozzleTemp, FormatNumber(s.NozzleTemp)),
		d.UpdateText(ctx, h.TargetNozzleTemp, FormatTargetTemp(s.NozzleTargetTemp)),
		d.SetIconState(ctx, h.NozzleTempIcon, s.NozzleTargetTemp > 0),

		d.UpdateText(ctx, h.PercentComplete, FormatPercent(s.Percent)),
		d.UpdateText(ctx, h.Layers, FormatLayers(s.Layer, s.TotalLayers)),
		d.UpdateText(ctx, h.TimeRemaining, FormatRemaining(s.RemainingMinutes)),
		d.UpdateText(ctx, h.SubtaskName, FormatModel(s.SubtaskName)),
		d.UpdateText(ctx, h.Stage, FormatStage(s.Stage)),

		d.UpdateText(ctx, h.PartFan, FormatFan("Part", s.PartFan)),
		d.SetIconState(ctx, h.PartFanIcon, FanOn(s.PartFan)),
		d.UpdateText(ctx, h.AuxFan, FormatFan("Aux", s.AuxFan)),
		d.SetIconState(ctx, h.AuxFanIcon, FanOn(s.AuxFan)),
		d.UpdateText(ctx, h.ChamberFan, FormatFan("Chamber", s.ChamberFan)),
		d.SetIconState(ctx, h.ChamberFanIcon, FanOn(s.ChamberFan)),
	}
	// Reports without a known tray keep the last filament shown.
	if s.Filament != "" {
		errs = append(errs, d.UpdateText(ctx, h.Filament, s.Filament))
	}
	return errors.Join(errs...)
}

// trackJob starts a lookup when the job changes, or when the overlay was
// reprovisioned since the last one.
func (p *Projector) trackJob(ctx context.Context, h *overlay.Handles, name string) error {
	if name == "" {
		return nil
	}
	changed := name != p.subtask
	if !changed && !p.relookup.Load() {
		return nil
	}
	p.relookup.Store(false)

	var err error
	if changed {
		p.logger.Info("print job changed", "job", name, "previous", p.subtask)
		p.subtask = name
		p.observer.JobChanged(name)
		err = errors.Join(
			p.display.SetIconState(ctx, h.PreviewImage, false),
			p.display.UpdateText(ctx, h.PrintWeight, ""),
		)
	}
	p.startLookup(name)
	return err
}

// applyLookup shows a finished lookup's preview and weight, if it is for the current job.
func (p *Projector) applyLookup(ctx context.Context, h *overlay.Handles) error {
	res := p.result.Swap(nil)
	if res == nil {
		return nil
	}
	if res.subtask != p.subtask {
		p.logger.Debug("discarding stale lookup", "job", res.subtask)
		return nil
	}

	var errs []error
	if res.preview {
		// The "on" file is rewritten per job; an unchanged path needs a reload.
		if current, _ := h.PreviewImage.Setting("file"); h.PreviewImage != nil &&
			current == h.PreviewImage.Descriptor.EnabledIconPath {
			errs = append(errs, p.display.ReloadImage(ctx, h.PreviewImage))
		} else {
			errs = append(errs, p.display.SetIconState(ctx, h.PreviewImage, true))
		}
	}
	if res.weight != "" {
		errs = append(errs, p.display.UpdateText(ctx, h.PrintWeight, FormatWeight(res.weight)))
		if grams, err := strconv.ParseFloat(res.weight, 64); err == nil {
			p.observer.JobWeight(res.subtask, grams)
		} else {
			p.logger.Debug("unparseable filament weight", "weight", res.weight)
		}
	}
	return errors.Join(errs...)
}

// startLookup replaces any in-flight lookup with one for name.
func (p *Projector) startLookup(name string) {
	if p.files == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.cancelLookup != nil {
		p.cancelLookup()
	}
	ctx, cancel := context.WithTimeout(p.baseCtx, p.opts.LookupTimeout)
	p.cancelLookup = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.lookup(ctx, name)
	}()
}

func (p *Projector) lookup(ctx context.Context, name string) {
	path, err := p.files.Locate(ctx, name)
	if err != nil {
		switch {
		case errors.Is(err, printfiles.ErrNotFound):
			p.logger.Warn("print file not found, no preview or weight", "job", name)
		case ctx.Err() == nil:
			p.logger.Error("locating print file failed", "job", name, "error", err)
		}
		return
	}

	res := &lookupResult{subtask: name}

	if thumb, err := p.files.Thumbnail(ctx, path); err != nil {
		p.logTransient(ctx, "reading print preview failed", path, err)
	} else if err := writeFileAtomic(p.opts.PreviewPath, thumb); err != nil {
		p.logger.Error("saving print preview failed", "path", p.opts.PreviewPath, "error", err)
	} else {
		res.preview = true
	}

	if weight, err := p.files.Weight(ctx, path); err != nil {
		p.logTransient(ctx, "reading filament weight failed", path, err)
	} else {
		res.weight = weight
	}

	if ctx.Err() != nil {
		return
	}
	if res.preview || res.weight != "" {
		p.logger.Info("print file lookup complete", "job", name, "preview", res.preview, "weight", res.weight)
		p.result.Store(res)
	}
}

func (p *Projector) logTransient(ctx context.Context, msg, path string, err error) {
	if ctx.Err() != nil {
		return
	}
	p.logger.Warn(msg, "path", path, "error", err)
}

// Close cancels any in-flight lookup and waits for it to return.
func (p *Projector) Close() {
	p.mu.Lock()
	p.closed = true
	p.baseCancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// writeFileAtomic replaces path so readers never see a partial image.
func writeFileAtomic(path string, data []byte) error {
	if path == "" {
		return errors.New("no preview path configured")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
