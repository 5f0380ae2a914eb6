// Package guid provides the RTPS global identifiers: GUID and
// SequenceNumber.
//
// A GUID uniquely names a participant or endpoint across a whole
// domain. A SequenceNumber orders the samples a single writer
// produces; it is never reused and never wraps.
package guid
