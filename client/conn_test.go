package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/respkit/client"
	"github.com/luma/respkit/protocol"
	"github.com/luma/respkit/transport"
)

var _ = Describe("client / Conn", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		server *transport.TCP
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		server = transport.NewTCP(transport.Options{
			Host: "127.0.0.1",
			Replies: map[string][]byte{
				"GET":   []byte("$3\r\nbar\r\n"),
				"SLOW":  []byte("$10\r\nabc"),
				"BAD":   []byte("?oops\r\n"),
				"SUB":   []byte(">2\r\n+message\r\n+hi\r\n+OK\r\n"),
				"MIXED": []byte("*2\r\n-ERR inner\r\n:1\r\n"),
			},
			Log: zap.NewNop(),
		})
		Expect(server.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(server.Close()).To(Succeed())
		cancel()
	})

	dial := func(opts client.Options) *client.Conn {
		conn, err := client.Dial(ctx, server.Addr().String(), opts)
		Expect(err).To(Succeed())

		return conn
	}

	It("negotiates RESP3 when dialing", func() {
		commands := server.ListenToCommands()

		conn := dial(client.Options{})
		defer conn.Close()

		var cmd transport.Command
		Eventually(commands).Should(Receive(&cmd))
		Expect(cmd.Name()).To(Equal("HELLO"))
		Expect(string(cmd.Args[1])).To(Equal("3"))
	})

	It("skips negotiation for RESP2", func() {
		commands := server.ListenToCommands()

		conn := dial(client.Options{Reader: protocol.Options{Protocol: protocol.RESP2}})
		defer conn.Close()

		Expect(conn.Do(ctx, "PING")).To(Equal(protocol.Value{
			Kind: protocol.KindSimpleString,
			Str:  []byte("PONG"),
		}))

		var cmd transport.Command
		Eventually(commands).Should(Receive(&cmd))
		Expect(cmd.Name()).To(Equal("PING"))
	})

	It("fails to dial when the server refuses RESP3", func() {
		refusing := transport.NewTCP(transport.Options{
			Host:    "127.0.0.1",
			Replies: map[string][]byte{"HELLO": []byte("-NOPROTO unsupported protocol version\r\n")},
			Log:     zap.NewNop(),
		})
		Expect(refusing.Start(ctx)).To(Succeed())
		defer refusing.Close()

		_, err := client.Dial(ctx, refusing.Addr().String(), client.Options{})

		var replyErr *protocol.ReplyError
		Expect(errors.As(err, &replyErr)).To(BeTrue())
		Expect(replyErr.Code()).To(Equal("NOPROTO"))
	})

	It("rejects unsupported protocol versions before dialing", func() {
		_, err := client.Dial(ctx, server.Addr().String(), client.Options{
			Reader: protocol.Options{Protocol: 4},
		})
		Expect(err).To(MatchError(protocol.ErrUnsupportedProtocol))
	})

	Describe("Do()", func() {
		It("returns the reply", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			v, err := conn.Do(ctx, "GET", "foo")
			Expect(err).To(Succeed())
			Expect(v.String()).To(Equal("bar"))
		})

		It("returns reply errors as values", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			v, err := conn.Do(ctx, "NOPE")
			Expect(err).To(Succeed())
			Expect(v.ErrorOrNil()).To(MatchError(ContainSubstring("unknown command")))
		})

		It("raises reply errors when asked to", func() {
			conn := dial(client.Options{Reader: protocol.Options{RaiseReplyErrors: true}})
			defer conn.Close()

			v, err := conn.Do(ctx, "MIXED")

			var replyErr *protocol.ReplyError
			Expect(errors.As(err, &replyErr)).To(BeTrue())
			Expect(replyErr.Message).To(Equal("ERR inner"))
			Expect(v.Len()).To(Equal(2))

			Expect(conn.Do(ctx, "PING")).To(Equal(protocol.Value{
				Kind: protocol.KindSimpleString,
				Str:  []byte("PONG"),
			}))
		})

		It("hands push messages to the push handler", func() {
			pushes := make(chan protocol.Value, 1)

			conn := dial(client.Options{PushHandler: func(v protocol.Value) {
				pushes <- v
			}})
			defer conn.Close()

			v, err := conn.Do(ctx, "SUB")
			Expect(err).To(Succeed())
			Expect(v.String()).To(Equal("OK"))

			var push protocol.Value
			Expect(pushes).To(Receive(&push))
			Expect(push.Elems[1].String()).To(Equal("hi"))
		})

		It("rejects arguments it cannot encode without breaking the connection", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			_, err := conn.Do(ctx, "SET", "k", struct{}{})
			Expect(err).To(MatchError(protocol.ErrUnsupportedArgument))

			_, err = conn.Do(ctx, "PING")
			Expect(err).To(Succeed())
		})

		It("breaks the connection when the context expires mid reply", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			slowCtx, slowCancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer slowCancel()

			_, err := conn.Do(slowCtx, "SLOW")
			Expect(err).To(MatchError(context.DeadlineExceeded))

			_, err = conn.Do(ctx, "PING")
			Expect(err).To(MatchError(client.ErrBroken))
		})

		It("keeps working after a context is cancelled at the end of a call", func() {
			var callCancel context.CancelFunc

			conn := dial(client.Options{
				PushHandler: func(protocol.Value) {
					callCancel()
				},
			})
			defer conn.Close()

			for i := 0; i < 20; i++ {
				var callCtx context.Context
				callCtx, callCancel = context.WithCancel(ctx)

				Expect(conn.Do(callCtx, "SUB")).To(Equal(protocol.Value{
					Kind: protocol.KindSimpleString,
					Str:  []byte("OK"),
				}))
				callCancel()

				Expect(conn.Do(ctx, "PING")).To(Equal(protocol.Value{
					Kind: protocol.KindSimpleString,
					Str:  []byte("PONG"),
				}))
			}
		})

		It("breaks the connection on protocol errors", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			_, err := conn.Do(ctx, "BAD")
			Expect(err).To(MatchError(protocol.ErrProtocol))

			_, err = conn.Do(ctx, "PING")
			Expect(err).To(MatchError(client.ErrBroken))
		})
	})

	Describe("Pipeline()", func() {
		It("returns the replies in order", func() {
			conn := dial(client.Options{})
			defer conn.Close()

			replies, err := conn.Pipeline(ctx,
				[]interface{}{"ECHO", "a"},
				[]interface{}{"GET", "k"},
				[]interface{}{"NOPE"},
			)
			Expect(err).To(Succeed())
			Expect(replies).To(HaveLen(3))
			Expect(replies[0].String()).To(Equal("a"))
			Expect(replies[1].String()).To(Equal("bar"))
			Expect(replies[2].Kind).To(Equal(protocol.KindError))
		})
	})

	Describe("Close()", func() {
		It("can be called twice", func() {
			conn := dial(client.Options{})

			Expect(conn.Close()).To(Succeed())
			Expect(conn.Close()).To(Succeed())

			_, err := conn.Do(ctx, "PING")
			Expect(err).To(MatchError(client.ErrClosed))
		})
	})
})
