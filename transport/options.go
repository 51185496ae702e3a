package transport

import (
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks a free port, see TCP.Addr.
	Port int

	// Reuseport controls setting SO_REUSEPORT, which lets several listeners share
	// the port.
	Reuseport bool

	// NumListeners is only honoured with Reuseport and a fixed Port. It defaults
	// to the number of CPUs.
	NumListeners int

	// Replies maps upper case command names to the raw RESP bytes sent back for
	// them. They take precedence over the built in commands.
	Replies map[string][]byte

	// Protocol is the RESP version the server starts every connection with.
	// HELLO switches it per connection. Zero means 2, like Redis.
	Protocol int

	Log *zap.Logger
}
