// Package sender implements the RTPS async sender: a single
// cooperative worker that drains each managed writer's admitted batch
// of outgoing changes to its transport.
package sender
