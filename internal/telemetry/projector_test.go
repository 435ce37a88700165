package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printcast/internal/overlay"
	"github.com/nerrad567/printcast/internal/printfiles"
)

// fakeDisplay records the last value applied to each source.
type fakeDisplay struct {
	mu      sync.Mutex
	texts   map[string]string
	icons   map[string]bool
	reloads map[string]int
	calls   int
	failOn  string
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		texts:   make(map[string]string),
		icons:   make(map[string]bool),
		reloads: make(map[string]int),
	}
}

func (f *fakeDisplay) UpdateText(_ context.Context, h *overlay.Handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if h.Name == f.failOn {
		return errors.New("obs unavailable")
	}
	f.texts[h.Name] = text
	return nil
}

func (f *fakeDisplay) SetIconState(_ context.Context, h *overlay.Handle, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.icons[h.Name] = enabled
	return nil
}

func (f *fakeDisplay) ReloadImage(_ context.Context, h *overlay.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reloads[h.Name]++
	return nil
}

func (f *fakeDisplay) text(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[name]
}

func (f *fakeDisplay) icon(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.icons[name]
}

func (f *fakeDisplay) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeFiles serves one job. When block is set, Locate waits for ctx.
type fakeFiles struct {
	mu      sync.Mutex
	job     string
	block   bool
	locates []string
}

func (f *fakeFiles) Locate(ctx context.Context, subtask string) (string, error) {
	f.mu.Lock()
	f.locates = append(f.locates, subtask)
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if subtask != f.job {
		return "", printfiles.ErrNotFound
	}
	return "/cache/" + subtask + ".3mf", nil
}

func (f *fakeFiles) Thumbnail(context.Context, string) ([]byte, error) {
	return []byte("png bytes"), nil
}

func (f *fakeFiles) Weight(context.Context, string) (string, error) {
	return "12.34", nil
}

func (f *fakeFiles) locateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locates)
}

type fakeObserver struct {
	mu        sync.Mutex
	snapshots int
	jobs      []string
	weights   map[string]float64
}

func (o *fakeObserver) StatusProjected(Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots++
}

func (o *fakeObserver) JobChanged(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, name)
}

func (o *fakeObserver) JobWeight(name string, grams float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.weights == nil {
		o.weights = make(map[string]float64)
	}
	o.weights[name] = grams
}

func handle(d overlay.Descriptor) *overlay.Handle {
	return &overlay.Handle{Name: d.Name, Descriptor: d}
}

func newHandles(imageDir string) *overlay.Handles {
	l := overlay.NewLayout(imageDir)
	return &overlay.Handles{
		ChamberTemp:      handle(l.ChamberTemp),
		BedTemp:          handle(l.BedTemp),
		TargetBedTemp:    handle(l.TargetBedTemp),
		NozzleTemp:       handle(l.NozzleTemp),
		TargetNozzleTemp: handle(l.TargetNozzleTemp),
		PercentComplete:  handle(l.PercentComplete),
		Layers:           handle(l.Layers),
		TimeRemaining:    handle(l.TimeRemaining),
		SubtaskName:      handle(l.SubtaskName),
		Stage:            handle(l.Stage),
		PartFan:          handle(l.PartFan),
		AuxFan:           handle(l.AuxFan),
		ChamberFan:       handle(l.ChamberFan),
		Filament:         handle(l.Filament),
		PrintWeight:      handle(l.PrintWeight),
		NozzleTempIcon:   handle(l.NozzleTempIcon),
		BedTempIcon:      handle(l.BedTempIcon),
		PartFanIcon:      handle(l.PartFanIcon),
		AuxFanIcon:       handle(l.AuxFanIcon),
		ChamberFanIcon:   handle(l.ChamberFanIcon),
		PreviewImage:     handle(l.PreviewImage),
	}
}

type harness struct {
	p        *Projector
	display  *fakeDisplay
	files    *fakeFiles
	observer *fakeObserver
	preview  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		display:  newFakeDisplay(),
		files:    &fakeFiles{job: "benchy"},
		observer: &fakeObserver{},
		preview:  filepath.Join(dir, overlay.PreviewFile),
	}
	h.p = NewProjector(Options{
		Display:       h.display,
		Files:         h.files,
		Observer:      h.observer,
		PreviewPath:   h.preview,
		LookupTimeout: 5 * time.Second,
	})
	h.p.SetHandles(newHandles(dir))
	t.Cleanup(h.p.Close)
	return h
}

// waitForResult blocks until a lookup has published its result.
func (h *harness) waitForResult(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.p.result.Load() == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for lookup result")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProjector_SkipsUntilProvisioned(t *testing.T) {
	display := newFakeDisplay()
	p := NewProjector(Options{Display: display})
	defer p.Close()

	snap, err := p.Project(context.Background(), []byte(fullReport))
	if err != nil || snap != nil {
		t.Fatalf("Project() = %v, %v; want nil, nil", snap, err)
	}
	if display.callCount() != 0 {
		t.Errorf("display calls = %d, want 0", display.callCount())
	}
	if p.Ready() {
		t.Error("Ready() = true before SetHandles")
	}
}

func TestProjector_SkipsNonStatus(t *testing.T) {
	h := newHarness(t)

	payloads := []string{
		`{"info":{"command":"get_version"}}`,
		`{"print":{"command":"push_status","nozzle_temper":220}}`,
	}
	for _, payload := range payloads {
		snap, err := h.p.Project(context.Background(), []byte(payload))
		if err != nil || snap != nil {
			t.Errorf("Project(%s) = %v, %v; want nil, nil", payload, snap, err)
		}
	}
	if h.display.callCount() != 0 {
		t.Errorf("display calls = %d, want 0", h.display.callCount())
	}
}

func TestProjector_Malformed(t *testing.T) {
	h := newHarness(t)

	_, err := h.p.Project(context.Background(), []byte(`not json`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Project() error = %v, want ErrMalformed", err)
	}
}

func TestProjector_RendersStatus(t *testing.T) {
	h := newHarness(t)

	snap, err := h.p.Project(context.Background(), []byte(fullReport))
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if snap == nil || snap.Layer != 12 {
		t.Fatalf("Project() snapshot = %+v", snap)
	}

	wantTexts := map[string]string{
		"ChamberTemp":      "31.5 °C",
		"BedTemp":          "59.8",
		"TargetBedTemp":    " / 60 °C",
		"NozzleTemp":       "219.6",
		"TargetNozzleTemp": " / 220 °C",
		"PercentComplete":  "42% complete",
		"Layers":           "Layers: 12/200",
		"TimeRemaining":    "-1h15m",
		"SubtaskName":      "Model: benchy",
		"Stage":            "Stage: Printing",
		"PartFan":          "Part: 100%",
		"AuxFan":           "Aux: 0%",
		"ChamberFan":       "Chamber: 60%",
		"Filament":         "PETG",
		"PrintWeight":      "",
	}
	for name, want := range wantTexts {
		if got := h.display.text(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	wantIcons := map[string]bool{
		"BedTempIcon":    true,
		"NozzleTempIcon": true,
		"PartFanIcon":    true,
		"AuxFanIcon":     false,
		"ChamberFanIcon": true,
		"PreviewImage":   false,
	}
	for name, want := range wantIcons {
		if got := h.display.icon(name); got != want {
			t.Errorf("%s icon = %v, want %v", name, got, want)
		}
	}

	if h.observer.snapshots != 1 {
		t.Errorf("observer snapshots = %d, want 1", h.observer.snapshots)
	}
}

func TestProjector_DisplayErrorKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.display.failOn = "Layers"

	snap, err := h.p.Project(context.Background(), []byte(fullReport))
	if err == nil {
		t.Error("Project() error = nil, want display error")
	}
	if snap == nil {
		t.Fatal("Project() snapshot = nil, want snapshot despite display error")
	}
	if got := h.display.text("Stage"); got != "Stage: Printing" {
		t.Errorf("Stage = %q, want remaining fields applied", got)
	}
}

func TestProjector_LookupAppliedOnNextMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.p.Project(ctx, []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	h.waitForResult(t)

	// Nothing is applied until the consumer processes another message.
	if h.display.icon("PreviewImage") {
		t.Fatal("preview enabled outside of Project")
	}

	if _, err := h.p.Project(ctx, []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if !h.display.icon("PreviewImage") {
		t.Error("PreviewImage icon = off, want on after lookup")
	}
	if got := h.display.text("PrintWeight"); got != "12.34g" {
		t.Errorf("PrintWeight = %q, want %q", got, "12.34g")
	}

	data, err := os.ReadFile(h.preview)
	if err != nil {
		t.Fatalf("reading preview: %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("preview = %q", data)
	}

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.jobs) != 1 || h.observer.jobs[0] != "benchy" {
		t.Errorf("JobChanged calls = %v, want [benchy]", h.observer.jobs)
	}
	if h.observer.weights["benchy"] != 12.34 {
		t.Errorf("JobWeight = %v, want 12.34", h.observer.weights)
	}
	if n := h.files.locateCount(); n != 1 {
		t.Errorf("Locate calls = %d, want 1", n)
	}
}

func TestProjector_NotFoundLeavesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.files.job = "something-else"
	ctx := context.Background()

	if _, err := h.p.Project(ctx, []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	h.p.Close()

	if h.p.result.Load() != nil {
		t.Error("lookup published a result for a missing file")
	}
	if h.display.icon("PreviewImage") {
		t.Error("PreviewImage icon = on, want placeholder")
	}
}

func TestProjector_ReprovisionRepeatsLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.p.Project(ctx, []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	h.waitForResult(t)

	h.p.SetHandles(newHandles(t.TempDir()))
	if _, err := h.p.Project(ctx, []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	h.p.Close()

	if n := h.files.locateCount(); n != 2 {
		t.Errorf("Locate calls = %d, want 2", n)
	}
	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.jobs) != 1 {
		t.Errorf("JobChanged calls = %v, want one", h.observer.jobs)
	}
}

func TestProjector_CloseCancelsLookup(t *testing.T) {
	h := newHarness(t)
	h.files.block = true

	if _, err := h.p.Project(context.Background(), []byte(fullReport)); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		h.p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not cancel the in-flight lookup")
	}
}
