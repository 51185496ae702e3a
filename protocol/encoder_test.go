package protocol_test

import (
	"bytes"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/redcon"

	"github.com/luma/respkit/protocol"
)

type failingMarshaler struct{}

func (failingMarshaler) MarshalBinary() ([]byte, error) {
	return nil, errors.New("boom")
}

var _ = Describe("Encoder", func() {
	Describe("Pack()", func() {
		It("encodes a command in the multi-bulk format", func() {
			b, err := protocol.Pack("SET", "key", "value")
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"))
		})

		It("encodes numbers in their decimal form", func() {
			b, err := protocol.Pack("INCRBY", "n", 42, int64(-7), uint8(3), 1.5, true)
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*7\r\n$6\r\nINCRBY\r\n$1\r\nn\r\n$2\r\n42\r\n$2\r\n-7\r\n$1\r\n3\r\n$3\r\n1.5\r\n$1\r\n1\r\n"))
		})

		It("keeps binary arguments intact", func() {
			b, err := protocol.Pack("SET", []byte("k"), []byte{0, '\r', '\n', 0xff})
			Expect(err).To(Succeed())
			Expect(b).To(Equal([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$4\r\n\x00\r\n\xff\r\n")))
		})

		It("encodes empty arguments and empty commands", func() {
			Expect(protocol.Pack("GET", "")).To(Equal([]byte("*2\r\n$3\r\nGET\r\n$0\r\n\r\n")))
			Expect(protocol.Pack()).To(Equal([]byte("*0\r\n")))
		})

		It("uses the Stringer form of an argument", func() {
			b, err := protocol.Pack("EXPIRE", "k", 1500*time.Millisecond)
			Expect(err).To(Succeed())
			Expect(string(b)).To(HaveSuffix("$4\r\n1.5s\r\n"))
		})

		It("uses the text form of an argument", func() {
			b, err := protocol.Pack("SET", "ip", net.ParseIP("10.0.0.1"))
			Expect(err).To(Succeed())
			Expect(string(b)).To(HaveSuffix("$8\r\n10.0.0.1\r\n"))
		})

		It("names the argument it could not encode", func() {
			_, err := protocol.Pack("SET", "k", struct{}{})
			Expect(err).To(MatchError(protocol.ErrUnsupportedArgument))

			var encErr *protocol.EncodeError
			Expect(errors.As(err, &encErr)).To(BeTrue())
			Expect(encErr.Index).To(Equal(2))
		})

		It("reports failing marshalers", func() {
			_, err := protocol.Pack("SET", "k", failingMarshaler{})
			Expect(err).To(MatchError(protocol.ErrUnsupportedArgument))
			Expect(err.Error()).To(ContainSubstring("boom"))
		})

		It("produces commands a RESP server parses back", func() {
			args := []interface{}{"HSET", "h", []byte("f\r\n"), 12, "unicode ✓"}

			b, err := protocol.Pack(args...)
			Expect(err).To(Succeed())

			cmd, err := redcon.Parse(b)
			Expect(err).To(Succeed())
			Expect(cmd.Args).To(Equal([][]byte{
				[]byte("HSET"), []byte("h"), []byte("f\r\n"), []byte("12"), []byte("unicode ✓"),
			}))
		})
	})

	Describe("PackArgs()", func() {
		It("produces the same bytes as Pack with the lists joined", func() {
			joined, err := protocol.Pack("MSET", "a", 1, "b", 2)
			Expect(err).To(Succeed())

			Expect(protocol.PackArgs(
				[]interface{}{"MSET"},
				[]interface{}{"a", 1},
				nil,
				[]interface{}{"b", 2},
			)).To(Equal(joined))
		})

		It("counts the argument index across lists", func() {
			_, err := protocol.PackArgs([]interface{}{"A", "B"}, []interface{}{"C", nil})

			var encErr *protocol.EncodeError
			Expect(errors.As(err, &encErr)).To(BeTrue())
			Expect(encErr.Index).To(Equal(3))
		})
	})

	Describe("PackPipeline()", func() {
		It("writes the commands back to back", func() {
			b, err := protocol.PackPipeline(
				[]interface{}{"PING"},
				[]interface{}{"GET", "k"},
			)
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*1\r\n$4\r\nPING\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
		})

		It("fails as a whole when one command fails", func() {
			b, err := protocol.PackPipeline(
				[]interface{}{"PING"},
				[]interface{}{"GET", map[string]int{}},
			)
			Expect(b).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("Failed to pack command 1")))
			Expect(errors.Is(err, protocol.ErrUnsupportedArgument)).To(BeTrue())
		})
	})

	Describe("AppendCommand()", func() {
		It("appends to the given buffer", func() {
			b, err := protocol.AppendCommand([]byte("prefix"), "PING")
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("prefix*1\r\n$4\r\nPING\r\n"))
		})

		It("leaves the buffer as it was on error", func() {
			b, err := protocol.AppendCommand([]byte("prefix"), "PING", make(chan int))
			Expect(err).To(HaveOccurred())
			Expect(string(b)).To(Equal("prefix"))
		})
	})

	Describe("WriteCommand()", func() {
		It("writes the encoded command", func() {
			var w bytes.Buffer
			Expect(protocol.WriteCommand(&w, "ECHO", "hi")).To(Succeed())
			Expect(w.String()).To(Equal("*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n"))
		})

		It("does not write anything when encoding fails", func() {
			var w bytes.Buffer
			Expect(protocol.WriteCommand(&w, "ECHO", func() {})).To(HaveOccurred())
			Expect(w.Len()).To(BeZero())
		})
	})

	It("round trips through the Reader", func() {
		b, err := protocol.Pack("GET", "key")
		Expect(err).To(Succeed())

		r := protocol.NewReader(protocol.Options{Protocol: protocol.RESP2})
		r.Feed(b)

		v, err := r.GetReply()
		Expect(err).To(Succeed())
		Expect(v).To(Equal(array(bulk("GET"), bulk("key"))))
	})
})
