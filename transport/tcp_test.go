package transport_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/respkit/protocol"
	"github.com/luma/respkit/transport"
)

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		var tcp *transport.TCP

		AfterEach(func() {
			Expect(tcp.Close()).To(Succeed())
		})

		It("listens on the reported address", func() {
			tcp = makeTCPServer(nil)

			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()
		})

		It("responds with PONG when the client sends PING", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			Expect(roundTrip(conn, "PING")).To(Equal(protocol.Value{
				Kind: protocol.KindSimpleString,
				Str:  []byte("PONG"),
			}))
		})

		It("echoes its argument", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			Expect(roundTrip(conn, "ECHO", "hi there").String()).To(Equal("hi there"))
		})

		It("answers configured commands with their canned reply", func() {
			tcp = makeTCPServer(map[string][]byte{
				"GET":  []byte("$3\r\nbar\r\n"),
				"PING": []byte("+custom\r\n"),
			})
			conn := dial(tcp)
			defer conn.Close()

			Expect(roundTrip(conn, "get", "foo").String()).To(Equal("bar"))
			Expect(roundTrip(conn, "PING").String()).To(Equal("custom"))
		})

		It("rejects unknown commands", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			v := roundTrip(conn, "FLUSHALL")
			Expect(v.Kind).To(Equal(protocol.KindError))
			Expect(v.Err.Code()).To(Equal("ERR"))
		})

		It("switches to RESP3 on HELLO 3", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			v := roundTrip(conn, "HELLO", 3)
			Expect(v.Kind).To(Equal(protocol.KindMap))
			Expect(v.Pairs).To(HaveLen(3))
			Expect(v.Pairs[2].Value.Int).To(Equal(int64(3)))

			Expect(roundTrip(conn, "HELLO", 4).Err.Code()).To(Equal("NOPROTO"))
		})

		It("closes client connections when they QUIT", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			Expect(roundTrip(conn, "QUIT").String()).To(Equal("OK"))

			waitForClose(conn)
		})

		It("publishes the commands it handles", func() {
			tcp = makeTCPServer(nil)
			commands := tcp.ListenToCommands()

			conn := dial(tcp)
			defer conn.Close()

			roundTrip(conn, "ECHO", "x")

			var cmd transport.Command
			Eventually(commands).Should(Receive(&cmd))
			Expect(cmd.Name()).To(Equal("ECHO"))
			Expect(cmd.Args).To(Equal([][]byte{[]byte("ECHO"), []byte("x")}))
		})

		It("disconnects clients when closed", func() {
			tcp = makeTCPServer(nil)
			conn := dial(tcp)
			defer conn.Close()

			roundTrip(conn, "PING")
			Expect(tcp.Close()).To(Succeed())

			waitForClose(conn)
		})
	})
})

func makeTCPServer(replies map[string][]byte) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	tcp := transport.NewTCP(transport.Options{
		Host:    "127.0.0.1",
		Port:    0,
		Replies: replies,
		Log:     log,
	})

	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}

func dial(tcp *transport.TCP) net.Conn {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())

	return conn
}

// roundTrip sends one command and decodes one reply.
func roundTrip(conn net.Conn, args ...interface{}) protocol.Value {
	Expect(conn.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	Expect(protocol.WriteCommand(conn, args...)).To(Succeed())

	r := protocol.NewReader(protocol.Options{})
	buf := make([]byte, 4096)

	for {
		v, err := r.GetReply()
		if err == nil {
			return v
		}
		Expect(errors.Is(err, protocol.ErrNeedMoreData)).To(BeTrue(), "unexpected error %v", err)

		n, err := conn.Read(buf)
		Expect(err).To(Succeed())
		r.Feed(buf[:n])
	}
}

func waitForClose(conn net.Conn) {
	// Wait to our client to be disconnected by the server
	timeout := time.After(5 * time.Second)

	for {
		select {
		case <-timeout:
			Fail("The client was never closed by the server")
			return

		case <-time.After(10 * time.Millisecond):
			one := make([]byte, 1)
			Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))).To(Succeed())

			_, err := conn.Read(one)

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if err != nil {
				return
			}
		}
	}
}
