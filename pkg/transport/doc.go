// Package transport defines the bootstrap transports a connection starts on.
// A Transport dials and listens on one kind of link and hands every accepted
// or dialed connection over as a stream.Stream; carrier negotiation then
// decides whether that stream is kept or replaced.
//
// Implementations live in sub-packages (tcp, quic, mem, winpipe); package
// transports maps configured kind names onto them.
package transport
