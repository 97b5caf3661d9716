// Package telemetry records RPC engine activity as Prometheus metrics and,
// when enabled, InfluxDB points.
//
//	metrics, err := telemetry.NewMetrics(registry)
//	...
//	recorder := telemetry.Combine(metrics, telemetry.NewInflux(influxClient, func() identity.Identity { return id }))
//
// Both Metrics and Influx implement rpc.Recorder; Combine fans out to
// several.
package telemetry
