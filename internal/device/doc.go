// Package device holds the services a display device runs on top of its
// RPC engine.
//
// Register installs the built-in methods the server may call:
//
//	add     {"a": int, "b": int} -> a+b, missing operands are zero
//	echo    params -> params
//	status  -> rpc.Status of the engine
//
// SyncConfig pulls the device configuration with get_config and keeps the
// last good copy in the key/value store, so a device that boots while the
// server is away still starts with its previous settings.
//
// # Usage
//
//	engine := rpc.New(transport, rpc.Options{Logger: log})
//	device.Register(engine, engine)
//	if err := engine.Begin(ctx, id); err != nil {
//	    return err
//	}
//	cfg, err := device.SyncConfig(ctx, engine, store, 0)
//	if errors.Is(err, device.ErrNoConfig) {
//	    // first boot with the server unreachable
//	}
package device
