package overlay

import "path/filepath"

// Status bar geometry. The bar is a translucent strip along the bottom of the canvas.
const (
	barTop    = 950
	barHeight = 130
	rowTop    = barTop + 15
	rowBottom = barTop + 70
	iconScale = 0.5
)

// barColor is ABGR: black at roughly 94% opacity.
const barColor = 4026531840

// ColorSourceName is the name of the status bar backdrop.
const ColorSourceName = "ColorSource"

// PreviewFile is the file name the print preview is written to inside the image directory.
const PreviewFile = "preview.png"

// Layout is the fixed catalogue of overlay sources. Paths are resolved
// against the image directory.
type Layout struct {
	ChamberTemp      Descriptor
	BedTemp          Descriptor
	TargetBedTemp    Descriptor
	NozzleTemp       Descriptor
	TargetNozzleTemp Descriptor
	PercentComplete  Descriptor
	Layers           Descriptor
	TimeRemaining    Descriptor
	SubtaskName      Descriptor
	Stage            Descriptor
	PartFan          Descriptor
	AuxFan           Descriptor
	ChamberFan       Descriptor
	Filament         Descriptor
	PrintWeight      Descriptor

	NozzleTempIcon Descriptor
	BedTempIcon    Descriptor
	PartFanIcon    Descriptor
	AuxFanIcon     Descriptor
	ChamberFanIcon Descriptor
	PreviewImage   Descriptor

	ChamberTempIcon Descriptor
	TimeIcon        Descriptor
	FilamentIcon    Descriptor
}

func text(name string, x, y float64) Descriptor {
	return Descriptor{Name: name, Kind: KindText, PositionX: x, PositionY: y}
}

func icon(name string, x, y float64, path string) Descriptor {
	return Descriptor{Name: name, Kind: KindImage, PositionX: x, PositionY: y, Scale: iconScale, IconPath: path}
}

func toggle(name string, x, y float64, off, on string) Descriptor {
	d := icon(name, x, y, off)
	d.EnabledIconPath = on
	return d
}

// NewLayout builds the catalogue with icons from imageDir.
func NewLayout(imageDir string) Layout {
	img := func(name string) string { return filepath.Join(imageDir, name) }

	return Layout{
		ChamberTemp:      text("ChamberTemp", 1490, rowTop),
		BedTemp:          text("BedTemp", 1120, rowTop),
		TargetBedTemp:    text("TargetBedTemp", 1190, rowTop),
		NozzleTemp:       text("NozzleTemp", 1120, rowBottom),
		TargetNozzleTemp: text("TargetNozzleTemp", 1190, rowBottom),
		PercentComplete:  text("PercentComplete", 230, rowTop),
		Layers:           text("Layers", 230, rowBottom),
		TimeRemaining:    text("TimeRemaining", 1720, rowTop),
		SubtaskName:      text("SubtaskName", 540, rowTop),
		Stage:            text("Stage", 540, rowBottom),
		PartFan:          text("PartFan", 1560, rowBottom),
		AuxFan:           text("AuxFan", 1700, rowBottom),
		ChamberFan:       text("ChamberFan", 1820, rowBottom),
		Filament:         text("Filament", 1490, rowBottom),
		PrintWeight:      text("PrintWeight", 1800, rowTop),

		NozzleTempIcon: toggle("NozzleTempIcon", 1060, rowBottom, img("nozzle_temp.png"), img("nozzle_temp_on.png")),
		BedTempIcon:    toggle("BedTempIcon", 1060, rowTop, img("bed_temp.png"), img("bed_temp_on.png")),
		PartFanIcon:    toggle("PartFanIcon", 1530, rowBottom, img("part_fan.png"), img("part_fan_on.png")),
		AuxFanIcon:     toggle("AuxFanIcon", 1670, rowBottom, img("aux_fan.png"), img("aux_fan_on.png")),
		ChamberFanIcon: toggle("ChamberFanIcon", 1790, rowBottom, img("chamber_fan.png"), img("chamber_fan_on.png")),
		PreviewImage: func() Descriptor {
			d := toggle("PreviewImage", 20, barTop+5, img("preview_placeholder.png"), img(PreviewFile))
			d.Scale = 0
			d.Bounds = &Bounds{Type: "OBS_BOUNDS_SCALE_INNER", Width: barHeight * 1.5, Height: barHeight - 10}
			return d
		}(),

		ChamberTempIcon: icon("ChamberTempIcon", 1430, rowTop, img("chamber_temp.png")),
		TimeIcon:        icon("TimeIcon", 1660, rowTop, img("time.png")),
		FilamentIcon:    icon("FilamentIcon", 1430, rowBottom, img("filament.png")),
	}
}

// PreviewPath is where the print preview must be written for PreviewImage to show it.
func (l Layout) PreviewPath() string {
	return l.PreviewImage.EnabledIconPath
}

// StreamDescriptor is the camera feed: an ffmpeg source reading the SDP
// file, scaled into the full canvas, at the bottom of the z-order.
func StreamDescriptor(name, sdpPath string) Descriptor {
	return Descriptor{
		Name:  name,
		Kind:  KindVideo,
		Scale: 1,
		Bounds: &Bounds{
			Type:   "OBS_BOUNDS_SCALE_INNER",
			Width:  VideoWidth,
			Height: VideoHeight,
		},
		ZIndex:   0,
		Settings: map[string]any{
			"ffmpeg_options":      "protocol_whitelist=file,rtp,udp",
			"hw_decode":           true,
			"input":               "file:" + sdpPath,
			"is_local_file":       false,
			"reconnect_delay_sec": 2,
		},
	}
}

// ColorDescriptor is the translucent status bar backdrop above the camera feed.
func ColorDescriptor() Descriptor {
	return Descriptor{
		Name:      ColorSourceName,
		Kind:      KindColor,
		PositionY: barTop,
		ZIndex:    1,
		Settings: map[string]any{
			"color":  barColor,
			"height": barHeight,
			"width":  VideoWidth,
		},
	}
}
