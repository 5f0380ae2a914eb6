// Package writer implements the RTPS reliable-writer state machine:
// per-matched-reader bookkeeping of which samples have been sent,
// acknowledged, or must be retransmitted, and the StatefulWriter that
// aggregates reader proxies and answers "acked by all?".
package writer
