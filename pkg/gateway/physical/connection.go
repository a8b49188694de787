// Package physical provides the byte-level sources taptap-observe can tap:
// a TCP-bridged serial link (the normal deployment) or a local serial port.
package physical

import "io"

// Connection is a readable, writable byte stream to the controller/gateway
// link. Write is a no-op (or rejected) on a readonly connection: the
// observer never drives the link, but an operator may still want a
// read-write tap for interactive debugging against a bench gateway.
type Connection interface {
	io.ReadWriteCloser
}
