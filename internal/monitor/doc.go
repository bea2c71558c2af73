// Package monitor logs periodic health reports.
//
// Components register a Sampler; the monitor walks them on a ticker
// and emits one structured log line per component. Sampling happens
// on the monitor goroutine, so samplers must be cheap and safe to
// call concurrently with the component's own work.
package monitor
