package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementCalls    = "rpc_calls"
	measurementRequests = "rpc_requests"
	measurementDrops    = "rpc_drops"
	measurementAssigned = "identity_assignments"
)

// WriteCallMetric records one outbound call.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - identity: device identity the engine is bound to
//   - method: remote method name
//   - outcome: "success", "remote_error", "timeout", "canceled" or "failed"
//   - latency: time from publish to return
//
// Example:
//
//	client.WriteCallMetric(42, "get_config", "success", 18*time.Millisecond)
func (c *Client) WriteCallMetric(identity int64, method, outcome string, latency time.Duration) {
	c.writePoint(measurementCalls,
		map[string]string{
			"identity": strconv.FormatInt(identity, 10),
			"method":   method,
			"outcome":  outcome,
		},
		map[string]interface{}{
			"latency_ms": durationMillis(latency),
		},
	)
}

// WriteRequestMetric records one answered inbound request. code is 0 for a
// result and the JSON-RPC error code otherwise.
func (c *Client) WriteRequestMetric(identity int64, method string, code int, latency time.Duration) {
	c.writePoint(measurementRequests,
		map[string]string{
			"identity": strconv.FormatInt(identity, 10),
			"method":   method,
		},
		map[string]interface{}{
			"code":       code,
			"latency_ms": durationMillis(latency),
		},
	)
}

// WriteDropMetric records one discarded inbound message.
func (c *Client) WriteDropMetric(identity int64, reason string) {
	c.writePoint(measurementDrops,
		map[string]string{
			"identity": strconv.FormatInt(identity, 10),
			"reason":   reason,
		},
		map[string]interface{}{
			"count": 1,
		},
	)
}

// WriteAssignment records an identity handed out by the authority.
func (c *Client) WriteAssignment(identity int64, requestID string) {
	c.writePoint(measurementAssigned,
		nil,
		map[string]interface{}{
			"identity":   identity,
			"request_id": requestID,
		},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
