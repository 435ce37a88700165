// Package mqtt connects to a printer's MQTT broker and supervises the connection.
//
// This package manages:
//   - The TLS connection to the printer (self-signed certificate, LAN access code)
//   - Subscriptions, restored on every connect
//   - A full status request after each connect
//   - Reconnection through Supervisor, with a single retry loop at a time
//
// # Architecture
//
// The printer publishes its status on device/{serial}/report. Reports arrive
// on paho's goroutines; handlers hand them to the ingestion queue and return.
//
//	Printer → MQTT (TLS 8883) → Client → handler → pipeline.Queue
//
// paho's auto-reconnect is disabled. When the connection drops the client
// calls its disconnect callback, and Supervisor.HandleDisconnect decides
// whether to exit or to retry. Concurrent disconnect notifications collapse
// into one retry loop guarded by a semaphore.
//
// # Security Considerations
//
//   - The access code is both the MQTT and the FTPS password
//   - Certificate verification is off by default because printers use
//     self-signed certificates (printer.tls_insecure)
//   - A refused login is fatal; retrying a wrong access code never succeeds
//
// # Usage
//
//	client := mqtt.New(cfg.Printer)
//	client.SetLogger(logger)
//	err := client.Subscribe(mqtt.Topics{}.Report(cfg.Printer.Serial), 0,
//	    func(topic string, payload []byte) error {
//	        queue.Push(payload)
//	        return nil
//	    })
//
//	sup := mqtt.NewSupervisor(mqtt.SupervisorOptions{Conn: client, OnFatal: stop})
//	client.SetOnDisconnect(func(err error) { go sup.HandleDisconnect(ctx, err) })
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package mqtt
