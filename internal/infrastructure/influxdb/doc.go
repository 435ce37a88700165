// Package influxdb records printer telemetry as InfluxDB time series.
//
// It wraps the official influxdb-client-go v2 library. Every projected
// status report becomes one printer_status point tagged with the printer
// serial and stage, so temperatures, progress and fan speeds can be graphed
// alongside the stream.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WritePrinterStatus(serial, status)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Failed
// batches are reported through the SetOnError callback, never returned.
// Connection and health check errors are returned directly.
package influxdb
