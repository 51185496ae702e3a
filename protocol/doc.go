// Package protocol implements the client side of RESP, the protocol Redis
// compatible servers speak, in both its RESP2 and RESP3 flavours.
//
// It has two halves that only share the wire format:
//
//   - `Reader` - an incremental reply decoder. Bytes are pushed in with Feed as
//     they arrive from the network and replies are pulled out with GetReply.
//   - `Pack` and friends - the command encoder, which turns arguments into the
//     multi-bulk format servers expect.
//
// Neither half does any I/O, manages connections or retries anything.
//
// === General Syntax
//
//   - every value starts with a single type byte
//   - headers and scalar values are terminated by `\r\n`
//   - lengths and counts are decimal ASCII
//
// RESP2 knows `+` simple strings, `-` errors, `:` integers, `$` bulk strings and
// `*` arrays, with `$-1\r\n` and `*-1\r\n` meaning null. RESP3 adds `_` null,
// `#` booleans, `,` doubles, `(` big numbers, `!` bulk errors, `=` verbatim
// strings, `%` maps, `~` sets and `>` pushes.
//
// === Commands
//
//	  > *3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n
//	  < +OK\r\n
//
// === Reading replies
//
//	r := protocol.NewReader(protocol.Options{})
//	r.Feed([]byte("$5\r\nhel"))
//	_, err := r.GetReply() // err == protocol.ErrNeedMoreData
//	r.Feed([]byte("lo\r\n"))
//	v, err := r.GetReply() // v.Str == "hello"
//
// === Errors
//
// There are three kinds and they must not be confused:
//
//   - *ProtocolError - the bytes do not follow the grammar. The Reader is
//     poisoned for good and the connection has to be torn down.
//   - *ReplyError - the server answered with an error. This is an ordinary
//     value; decoding carries on with the next reply.
//   - *EncodeError - an argument passed to Pack cannot be turned into bytes.
package protocol
