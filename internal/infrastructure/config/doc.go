// Package config handles loading and validating espdisplay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The defaults reproduce the display firmware's wire contract: topic prefix
// "espdisplay", provisioning on "espdisplay/subscribe", handshake replies on
// "espdisplay/broadcast" and a 5 second call/handshake timeout.
//
// Security Considerations:
//   - MQTT credentials and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.RPC.TopicPrefix)
package config
