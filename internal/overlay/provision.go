package overlay

import (
	"context"
	"fmt"
)

// firstLayoutZIndex is the z-index of the first layout source; the camera
// feed and the backdrop sit at 0 and 1.
const firstLayoutZIndex = 2

// Handles are the provisioned layout sources the telemetry display updates.
type Handles struct {
	ChamberTemp      *Handle
	BedTemp          *Handle
	TargetBedTemp    *Handle
	NozzleTemp       *Handle
	TargetNozzleTemp *Handle
	PercentComplete  *Handle
	Layers           *Handle
	TimeRemaining    *Handle
	SubtaskName      *Handle
	Stage            *Handle
	PartFan          *Handle
	AuxFan           *Handle
	ChamberFan       *Handle
	Filament         *Handle
	PrintWeight      *Handle

	NozzleTempIcon *Handle
	BedTempIcon    *Handle
	PartFanIcon    *Handle
	AuxFanIcon     *Handle
	ChamberFanIcon *Handle
	PreviewImage   *Handle
}

// EnsureVideoSettings sets a 1920x1080 canvas and output at 30 fps. Changing
// them while any output runs fails with ErrLiveResize.
func (r *Reconciler) EnsureVideoSettings(ctx context.Context) error {
	vs, err := r.svc.GetVideoSettings(ctx)
	if err != nil {
		return fmt.Errorf("reading video settings: %w", err)
	}
	if vs.BaseWidth == VideoWidth && vs.OutputWidth == VideoWidth &&
		vs.BaseHeight == VideoHeight && vs.OutputHeight == VideoHeight {
		return nil
	}

	for _, check := range []func(context.Context) (bool, error){
		r.svc.RecordActive, r.svc.StreamActive, r.svc.VirtualCamActive,
	} {
		active, err := check(ctx)
		if err != nil {
			return fmt.Errorf("reading output status: %w", err)
		}
		if active {
			return ErrLiveResize
		}
	}

	r.logger.Info("setting video settings", "width", VideoWidth, "height", VideoHeight, "fps", VideoFPS)
	vs.BaseWidth, vs.OutputWidth = VideoWidth, VideoWidth
	vs.BaseHeight, vs.OutputHeight = VideoHeight, VideoHeight
	vs.FPSNumerator, vs.FPSDenominator = VideoFPS, 1
	if err := r.svc.SetVideoSettings(ctx, vs); err != nil {
		return fmt.Errorf("applying video settings: %w", err)
	}
	return r.backoff(ctx)
}

// EnsureScene creates the scene and makes it the program scene when missing.
func (r *Reconciler) EnsureScene(ctx context.Context) error {
	scenes, err := r.svc.GetSceneList(ctx)
	if err != nil {
		return fmt.Errorf("listing scenes: %w", err)
	}
	for _, s := range scenes {
		if s.Name == r.opts.Scene {
			return nil
		}
	}

	r.logger.Info("creating scene", "scene", r.opts.Scene)
	if err := r.svc.CreateScene(ctx, r.opts.Scene); err != nil {
		return fmt.Errorf("creating scene %s: %w", r.opts.Scene, err)
	}
	if err := r.svc.SetCurrentProgramScene(ctx, r.opts.Scene); err != nil {
		return fmt.Errorf("switching to scene %s: %w", r.opts.Scene, err)
	}
	return r.backoff(ctx)
}

// EnsureStreamSource provisions the camera feed.
func (r *Reconciler) EnsureStreamSource(ctx context.Context) (*Handle, error) {
	return r.Ensure(ctx, StreamDescriptor(r.opts.StreamSource, r.opts.SDPPath))
}

// EnsureColorSource provisions the status bar backdrop.
func (r *Reconciler) EnsureColorSource(ctx context.Context) (*Handle, error) {
	return r.Ensure(ctx, ColorDescriptor())
}

// Provision builds the whole scene: video settings, scene, camera feed,
// backdrop, then every layout source in z-order.
func (r *Reconciler) Provision(ctx context.Context, l Layout) (*Handles, error) {
	if err := r.EnsureVideoSettings(ctx); err != nil {
		return nil, err
	}
	if err := r.EnsureScene(ctx); err != nil {
		return nil, err
	}
	if _, err := r.EnsureStreamSource(ctx); err != nil {
		return nil, err
	}
	if _, err := r.EnsureColorSource(ctx); err != nil {
		return nil, err
	}

	h := &Handles{}
	var discard *Handle
	steps := []struct {
		d   Descriptor
		dst **Handle
	}{
		{l.ChamberTemp, &h.ChamberTemp},
		{l.BedTemp, &h.BedTemp},
		{l.TargetBedTemp, &h.TargetBedTemp},
		{l.NozzleTemp, &h.NozzleTemp},
		{l.TargetNozzleTemp, &h.TargetNozzleTemp},
		{l.PercentComplete, &h.PercentComplete},
		{l.Layers, &h.Layers},
		{l.TimeRemaining, &h.TimeRemaining},
		{l.SubtaskName, &h.SubtaskName},
		{l.Stage, &h.Stage},
		{l.PartFan, &h.PartFan},
		{l.AuxFan, &h.AuxFan},
		{l.ChamberFan, &h.ChamberFan},
		{l.Filament, &h.Filament},
		{l.PrintWeight, &h.PrintWeight},

		{l.NozzleTempIcon, &h.NozzleTempIcon},
		{l.BedTempIcon, &h.BedTempIcon},
		{l.PartFanIcon, &h.PartFanIcon},
		{l.AuxFanIcon, &h.AuxFanIcon},
		{l.ChamberFanIcon, &h.ChamberFanIcon},
		{l.PreviewImage, &h.PreviewImage},

		// Static icons.
		{l.ChamberTempIcon, &discard},
		{l.TimeIcon, &discard},
		{l.FilamentIcon, &discard},
	}

	z := firstLayoutZIndex
	for _, step := range steps {
		d := step.d
		d.ZIndex = z
		z++

		handle, err := r.Ensure(ctx, d)
		if err != nil {
			return nil, err
		}
		*step.dst = handle
	}

	r.logger.Info("overlay provisioned", "scene", r.opts.Scene, "sources", len(steps)+2)
	return h, nil
}

// InventoryItem describes one input of the scene.
type InventoryItem struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	SceneItemID int            `json:"scene_item_id"`
	Transform   map[string]any `json:"transform"`
	Settings    map[string]any `json:"settings"`
}

// Inventory is a dump of the current OBS layout.
type Inventory struct {
	Video map[string]int  `json:"video"`
	Items []InventoryItem `json:"items"`
}

// Inventory reads the video settings and every input placed in the scene.
// Inputs not in the scene are skipped.
func (r *Reconciler) Inventory(ctx context.Context) (*Inventory, error) {
	vs, err := r.svc.GetVideoSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading video settings: %w", err)
	}
	inv := &Inventory{
		Video: map[string]int{
			"base_width":      vs.BaseWidth,
			"base_height":     vs.BaseHeight,
			"output_width":    vs.OutputWidth,
			"output_height":   vs.OutputHeight,
			"fps_numerator":   vs.FPSNumerator,
			"fps_denominator": vs.FPSDenominator,
		},
	}

	inputs, err := r.svc.GetInputList(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing inputs: %w", err)
	}

	for _, in := range inputs {
		id, err := r.svc.GetSceneItemID(ctx, r.opts.Scene, in.Name)
		if err != nil {
			if isCancelled(err) {
				return nil, err
			}
			r.logger.Debug("input not in scene", "input", in.Name, "error", err)
			continue
		}
		transform, err := r.svc.GetSceneItemTransform(ctx, r.opts.Scene, id)
		if err != nil {
			if isCancelled(err) {
				return nil, err
			}
			r.logger.Debug("reading transform failed", "input", in.Name, "error", err)
			continue
		}
		settings, err := r.svc.GetInputSettings(ctx, in.Name)
		if err != nil {
			if isCancelled(err) {
				return nil, err
			}
			r.logger.Debug("reading settings failed", "input", in.Name, "error", err)
			continue
		}
		inv.Items = append(inv.Items, InventoryItem{
			Name:        in.Name,
			Kind:        in.Kind,
			SceneItemID: id,
			Transform:   transform,
			Settings:    settings.Settings,
		})
	}
	return inv, nil
}
