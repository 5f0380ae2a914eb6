// Package flowcontrol implements the RTPS throughput controller: a
// token-bucket-style admission filter over an outbound batch of
// changes, plus the cancellation-safe refresh scheduling that restores
// admitted budget after each period.
package flowcontrol
