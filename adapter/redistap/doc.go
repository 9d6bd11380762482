// Package redistap mirrors hub traffic into a Redis stream for auditing.
//
// A Tap registers a broker messenger on an xhub.Hub. Every origin message the
// broker sees is written to the configured stream with XADD and then passed
// on untouched, so attaching a tap never changes routing. Replies travel back
// along return paths and are not seen by brokers, hence not recorded.
//
// Config keys accepted by ConfigFromMap:
// - addr: "host:port" (default "127.0.0.1:6379")
// - stream: stream name (default "xhub:tap")
// - max_len_approx: approximate MAXLEN trim (default 100000, 0 disables)
// - codec: payload codec registered with xhub.RegisterCodec (default "json")
// - write_timeout: per-XADD timeout (default 2s)
//
// Example:
//
//	tap, err := redistap.Attach(ctx, hub, redistap.Config{
//	    Addr:   "localhost:6379",
//	    Stream: "settings-audit",
//	}, redistap.WithLogger(logger))
//	defer tap.Close()
package redistap
