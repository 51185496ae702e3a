package transport

import (
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/redcon"
	"go.uber.org/zap"

	"github.com/luma/respkit/internal/meta"
)

const (
	CommandBufferSize = 255
)

// Command is a request received by the server.
type Command struct {
	RemoteAddr string
	Args       [][]byte
}

// Name returns the upper cased command name.
func (c Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}

	return strings.ToUpper(string(c.Args[0]))
}

// connState is stored as the redcon connection context.
type connState struct {
	protocol int
}

// handler answers commands from canned replies and a handful of built ins.
type handler struct {
	mux      *redcon.ServeMux
	protocol int

	mu           sync.Mutex
	commandChans []chan Command

	log *zap.Logger
}

func newHandler(replies map[string][]byte, protocol int, log *zap.Logger) *handler {
	h := &handler{
		mux:          redcon.NewServeMux(),
		protocol:     protocol,
		commandChans: make([]chan Command, 0),
		log:          log,
	}

	for name, raw := range replies {
		raw := raw
		h.mux.HandleFunc(strings.ToLower(name), func(conn redcon.Conn, cmd redcon.Command) {
			conn.WriteRaw(raw)
		})
	}

	builtins := map[string]func(redcon.Conn, redcon.Command){
		"ping":  h.ping,
		"echo":  h.echo,
		"quit":  h.quit,
		"hello": h.hello,
	}

	for name, fn := range builtins {
		if _, ok := replies[strings.ToUpper(name)]; ok {
			continue
		}

		h.mux.HandleFunc(name, fn)
	}

	return h
}

func (h *handler) accept(conn redcon.Conn) bool {
	conn.SetContext(&connState{protocol: h.protocol})
	h.log.Debug("Accepted connection", zap.String("remote", conn.RemoteAddr()))

	return true
}

func (h *handler) serve(conn redcon.Conn, cmd redcon.Command) {
	args := make([][]byte, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = append([]byte(nil), arg...)
	}

	h.publish(Command{RemoteAddr: conn.RemoteAddr(), Args: args})
	h.mux.ServeRESP(conn, cmd)
}

func (h *handler) listen() <-chan Command {
	h.mu.Lock()
	defer h.mu.Unlock()

	commandChan := make(chan Command, CommandBufferSize)
	h.commandChans = append(h.commandChans, commandChan)

	return commandChan
}

func (h *handler) publish(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, commandChan := range h.commandChans {
		select {
		case commandChan <- cmd:
		default:
			h.log.Warn("Dropped command, listener is not keeping up",
				zap.String("command", cmd.Name()))
		}
	}
}

func (h *handler) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, commandChan := range h.commandChans {
		close(commandChan)
	}
	h.commandChans = nil
}

func (h *handler) ping(conn redcon.Conn, cmd redcon.Command) {
	switch len(cmd.Args) {
	case 1:
		conn.WriteString("PONG")
	case 2:
		conn.WriteBulk(cmd.Args[1])
	default:
		wrongArity(conn, cmd)
	}
}

func (h *handler) echo(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) != 2 {
		wrongArity(conn, cmd)
		return
	}

	conn.WriteBulk(cmd.Args[1])
}

func (h *handler) quit(conn redcon.Conn, cmd redcon.Command) {
	conn.WriteString("OK")
	conn.Close()
}

// hello implements protocol negotiation: HELLO [protover].
func (h *handler) hello(conn redcon.Conn, cmd redcon.Command) {
	state := conn.Context().(*connState)

	if len(cmd.Args) > 1 {
		version, err := strconv.Atoi(string(cmd.Args[1]))
		if err != nil || version < 2 || version > 3 {
			conn.WriteError("NOPROTO unsupported protocol version")
			return
		}

		state.protocol = version
	}

	if state.protocol >= 3 {
		conn.WriteRaw([]byte("%3\r\n"))
	} else {
		conn.WriteArray(6)
	}

	conn.WriteBulkString("server")
	conn.WriteBulkString("respkit")
	conn.WriteBulkString("version")
	conn.WriteBulkString(meta.GetInfo().Version)
	conn.WriteBulkString("proto")
	conn.WriteInt(state.protocol)
}

func wrongArity(conn redcon.Conn, cmd redcon.Command) {
	conn.WriteError("ERR wrong number of arguments for '" + strings.ToLower(string(cmd.Args[0])) + "' command")
}
