// Package relay implements the bytestream relay: it accepts SOCKS5 clients,
// pairs them by the session key they CONNECT to, and once a session is
// activated through the control channel splices the two sockets together.
//
// The Coordinator owns the session table. Every Conn drives its own client
// through the handshake, registers with the Coordinator, and then becomes the
// reader half of the pump: bytes it reads are written to its peer once the
// session is active. A blocking write to the peer stalls the reader, which is
// what bounds memory when one side is slow.
package relay
