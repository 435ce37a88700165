package bridge

import (
	"github.com/nerrad567/printcast/internal/api"
	"github.com/nerrad567/printcast/internal/infrastructure/influxdb"
	"github.com/nerrad567/printcast/internal/stage"
	"github.com/nerrad567/printcast/internal/telemetry"
)

// stageTransitionMeasurement records every stage change in InfluxDB.
const stageTransitionMeasurement = "stage_transition"

type journalSink interface {
	Observe(subtask string, s stage.Stage)
	JobWeight(name string, grams float64)
}

type metricsSink interface {
	WritePrinterStatus(serial string, s influxdb.PrinterStatus)
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

type liveSink interface {
	Broadcast(channel string, payload any)
}

// fanout forwards projector events to whichever sinks are enabled.
// Sinks are assigned before any event is delivered and never change after.
type fanout struct {
	serial  string
	journal journalSink
	metrics metricsSink
	live    liveSink
}

// statusEvent is the live feed payload for a projected report.
type statusEvent struct {
	telemetry.Snapshot
	StageName string `json:"stage_name"`
}

type jobEvent struct {
	SubtaskName string   `json:"subtask_name"`
	WeightGrams *float64 `json:"weight_grams,omitempty"`
}

func (f *fanout) StatusProjected(s telemetry.Snapshot) {
	if f.journal != nil {
		f.journal.Observe(s.SubtaskName, s.Stage)
	}
	if f.metrics != nil {
		f.metrics.WritePrinterStatus(f.serial, printerStatus(s))
	}
	if f.live != nil {
		f.live.Broadcast(api.ChannelStatus, statusEvent{Snapshot: s, StageName: s.Stage.String()})
	}
}

func (f *fanout) JobChanged(name string) {
	if f.live != nil {
		f.live.Broadcast(api.ChannelJob, jobEvent{SubtaskName: name})
	}
}

func (f *fanout) JobWeight(name string, grams float64) {
	if f.journal != nil {
		f.journal.JobWeight(name, grams)
	}
	if f.live != nil {
		f.live.Broadcast(api.ChannelJob, jobEvent{SubtaskName: name, WeightGrams: &grams})
	}
}

// StageChanged is the stage engine's transition hook.
func (f *fanout) StageChanged(from, to stage.Stage) {
	if f.metrics == nil {
		return
	}
	f.metrics.WritePoint(stageTransitionMeasurement,
		map[string]string{"serial": f.serial},
		map[string]interface{}{
			"from":      int(from),
			"to":        int(to),
			"from_name": from.String(),
			"to_name":   to.String(),
		})
}

func printerStatus(s telemetry.Snapshot) influxdb.PrinterStatus {
	return influxdb.PrinterStatus{
		ChamberTemp:       s.ChamberTemp,
		BedTemp:           s.BedTemp,
		BedTargetTemp:     s.BedTargetTemp,
		NozzleTemp:        s.NozzleTemp,
		NozzleTargetTemp:  s.NozzleTargetTemp,
		Percent:           s.Percent,
		Layer:             s.Layer,
		TotalLayers:       s.TotalLayers,
		RemainingMinutes:  s.RemainingMinutes,
		Stage:             int(s.Stage),
		StageName:         s.Stage.String(),
		PartFanPercent:    telemetry.FanPercent(s.PartFan),
		AuxFanPercent:     telemetry.FanPercent(s.AuxFan),
		ChamberFanPercent: telemetry.FanPercent(s.ChamberFan),
		SubtaskName:       s.SubtaskName,
	}
}
