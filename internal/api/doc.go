// Package api serves the admin HTTP endpoints of an espdisplay process.
//
// Routes:
//
//	GET  /api/v1/health        component health, 503 when any check fails
//	GET  /api/v1/identity      engine identity, topics and methods
//	POST /api/v1/rpc/{method}  call a method on the peer, body = params
//	GET  /metrics              Prometheus exposition
//
// The server follows the same lifecycle as the infrastructure clients:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// There is no authentication; bind it to localhost or a management network.
package api
