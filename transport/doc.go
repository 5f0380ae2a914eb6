// Package transport defines the datagram transport this core consumes
// as an external collaborator: the Transport interface the async
// sender writes to, the Locator addressing scheme, and the wire
// Packet framing carrying an encoded RTPS submessage.
//
// Transport selection and routing are explicitly out of scope beyond
// the one concrete UDP implementation kept here, which exists so the
// send path has something real to exercise end to end in tests.
package transport
