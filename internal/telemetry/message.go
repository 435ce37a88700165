package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/printcast/internal/stage"
)

// KindPrint is the envelope key of print status messages.
const KindPrint = "print"

// commandPushStatus is the command of periodic status reports.
const commandPushStatus = "push_status"

// ParseEnvelope returns the first key of the payload's top-level object,
// which names the message kind.
func ParseEnvelope(payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	tok, err = dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: empty object", ErrMalformed)
	}
	return key, nil
}

// PrintMessage is the "print" envelope.
type PrintMessage struct {
	Print Report `json:"print"`
}

// Report is the body of a print message. Partial (delta) reports leave most
// fields out; the pointer fields tell a full report from a delta.
type Report struct {
	Command string `json:"command"`

	ChamberTemper      float64 `json:"chamber_temper"`
	BedTemper          float64 `json:"bed_temper"`
	BedTargetTemper    float64 `json:"bed_target_temper"`
	NozzleTemper       float64 `json:"nozzle_temper"`
	NozzleTargetTemper float64 `json:"nozzle_target_temper"`

	McPercent       *int `json:"mc_percent"`
	LayerNum        *int `json:"layer_num"`
	TotalLayerNum   int  `json:"total_layer_num"`
	McRemainingTime int  `json:"mc_remaining_time"`
	StgCur          *int `json:"stg_cur"`

	SubtaskName string `json:"subtask_name"`

	CoolingFanSpeed string `json:"cooling_fan_speed"`
	BigFan1Speed    string `json:"big_fan1_speed"`
	BigFan2Speed    string `json:"big_fan2_speed"`

	AMS    *AMSReport `json:"ams"`
	VTTray *Tray      `json:"vt_tray"`
}

// AMSReport describes the automatic material system.
type AMSReport struct {
	// TrayNow is the global index of the loaded tray: unit*4+slot, "254"
	// for the external spool, "255" when nothing is loaded.
	TrayNow string    `json:"tray_now"`
	Units   []AMSUnit `json:"ams"`
}

// AMSUnit is one AMS with up to four trays.
type AMSUnit struct {
	ID    string `json:"id"`
	Trays []Tray `json:"tray"`
}

// Tray is a filament slot.
type Tray struct {
	ID       string `json:"id"`
	TrayType string `json:"tray_type"`
}

const (
	trayExternal = 254
	trayNone     = 255
	traysPerUnit = 4
)

// IsStatusUpdate reports whether the report is a full periodic status.
func (r Report) IsStatusUpdate() bool {
	return r.Command == commandPushStatus &&
		r.StgCur != nil && r.McPercent != nil && r.LayerNum != nil
}

// CurrentTray returns the loaded tray, or nil when unknown.
func (r Report) CurrentTray() *Tray {
	if r.AMS == nil {
		return nil
	}
	n, err := strconv.Atoi(r.AMS.TrayNow)
	if err != nil || n == trayNone {
		return nil
	}
	if n == trayExternal {
		return r.VTTray
	}

	unitID := strconv.Itoa(n / traysPerUnit)
	trayID := strconv.Itoa(n % traysPerUnit)
	for _, unit := range r.AMS.Units {
		if unit.ID != unitID {
			continue
		}
		for i := range unit.Trays {
			if unit.Trays[i].ID == trayID {
				return &unit.Trays[i]
			}
		}
	}
	return nil
}

// Snapshot is the display-relevant state of one full report.
type Snapshot struct {
	ChamberTemp      float64     `json:"chamber_temp"`
	BedTemp          float64     `json:"bed_temp"`
	BedTargetTemp    float64     `json:"bed_target_temp"`
	NozzleTemp       float64     `json:"nozzle_temp"`
	NozzleTargetTemp float64     `json:"nozzle_target_temp"`
	Percent          int         `json:"percent"`
	Layer            int         `json:"layer"`
	TotalLayers      int         `json:"total_layers"`
	RemainingMinutes int         `json:"remaining_minutes"`
	PartFan          string      `json:"part_fan"`
	AuxFan           string      `json:"aux_fan"`
	ChamberFan       string      `json:"chamber_fan"`
	SubtaskName      string      `json:"subtask_name"`
	Stage            stage.Stage `json:"stage"`
	Filament         string      `json:"filament,omitempty"`
}

// NewSnapshot builds a snapshot from a full report.
func NewSnapshot(r Report) Snapshot {
	s := Snapshot{
		ChamberTemp:      r.ChamberTemper,
		BedTemp:          r.BedTemper,
		BedTargetTemp:    r.BedTargetTemper,
		NozzleTemp:       r.NozzleTemper,
		NozzleTargetTemp: r.NozzleTargetTemper,
		TotalLayers:      r.TotalLayerNum,
		RemainingMinutes: r.McRemainingTime,
		PartFan:          r.CoolingFanSpeed,
		AuxFan:           r.BigFan1Speed,
		ChamberFan:       r.BigFan2Speed,
		SubtaskName:      r.SubtaskName,
		Stage:            stage.Idle,
	}
	if r.McPercent != nil {
		s.Percent = *r.McPercent
	}
	if r.LayerNum != nil {
		s.Layer = *r.LayerNum
	}
	if r.StgCur != nil {
		s.Stage = stage.FromReport(*r.StgCur)
	}
	if tray := r.CurrentTray(); tray != nil {
		s.Filament = tray.TrayType
	}
	return s
}
