// Package pipecache compiles compute kernels off the frame goroutine and
// exposes a pollable readiness state per request.
//
// A request is queued once at startup. Compilation of the WGSL source runs
// on a bounded set of background goroutines; identical sources are compiled
// once and shared through an LRU of compiled shader code. The frame loop
// calls [Cache.Poll] once per frame. Poll never blocks: it reports
// [StatePending] until the background work is done, then creates the shader
// module and compute pipeline on the calling goroutine and reports
// [StateReady].
//
// A failed compilation is terminal. Poll reports [StateFailed] with the
// error for the rest of the cache's life and the failure is logged once.
package pipecache
