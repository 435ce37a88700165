package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// statusMeasurement is the measurement every status report is written to.
const statusMeasurement = "printer_status"

// PrinterStatus is one projected status report.
type PrinterStatus struct {
	ChamberTemp      float64
	BedTemp          float64
	BedTargetTemp    float64
	NozzleTemp       float64
	NozzleTargetTemp float64

	Percent          int
	Layer            int
	TotalLayers      int
	RemainingMinutes int

	Stage     int
	StageName string

	PartFanPercent    int
	AuxFanPercent     int
	ChamberFanPercent int

	SubtaskName string
}

// WritePrinterStatus queues a printer_status point tagged with the serial
// and stage name. Dropped silently when the client is closed.
func (c *Client) WritePrinterStatus(serial string, s PrinterStatus) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statusPoint(serial, s, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("print_job",
//	    map[string]string{"serial": serial},
//	    map[string]interface{}{"weight_grams": 12.3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func statusPoint(serial string, s PrinterStatus, at time.Time) *write.Point {
	p := write.NewPointWithMeasurement(statusMeasurement).
		AddTag("serial", serial).
		AddTag("stage", s.StageName).
		AddField("chamber_temp", s.ChamberTemp).
		AddField("bed_temp", s.BedTemp).
		AddField("bed_target_temp", s.BedTargetTemp).
		AddField("nozzle_temp", s.NozzleTemp).
		AddField("nozzle_target_temp", s.NozzleTargetTemp).
		AddField("percent", s.Percent).
		AddField("layer", s.Layer).
		AddField("total_layers", s.TotalLayers).
		AddField("remaining_minutes", s.RemainingMinutes).
		AddField("stage_id", s.Stage).
		AddField("part_fan_percent", s.PartFanPercent).
		AddField("aux_fan_percent", s.AuxFanPercent).
		AddField("chamber_fan_percent", s.ChamberFanPercent).
		SetTime(at)
	if s.SubtaskName != "" {
		p.AddField("subtask_name", s.SubtaskName)
	}
	return p
}
