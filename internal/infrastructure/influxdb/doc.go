// Package influxdb provides InfluxDB connectivity for Cast Logic Core.
//
// It wraps the influxdb-client-go v2 library and records receiver
// telemetry: status readings (volume, mute, queue length) and connection
// state changes.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReceiverStatus(influxdb.ReceiverSample{
//	    DeviceID: "kitchen",
//	    Volume:   0.4,
//	})
//
// Writes are batched according to config.yaml (batch_size, flush_interval).
// Async write errors are reported through SetOnError.
package influxdb
