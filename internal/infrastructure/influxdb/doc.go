// Package influxdb writes RPC traffic metrics to InfluxDB v2.
//
// Points are written per completed call, per answered request, per dropped
// message, and per identity assigned by the authority. The telemetry
// package feeds it through the rpc.Recorder interface.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCallMetric(42, "get_config", "success", 18*time.Millisecond)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// failures arrive asynchronously through SetOnError. Connection and health
// check errors are returned directly.
package influxdb
