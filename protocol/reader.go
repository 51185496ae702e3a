package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ReaderState describes where a Reader is between calls to GetReply.
type ReaderState int

const (
	// StateIdle means no reply is partially decoded.
	StateIdle ReaderState = iota

	// StateMidReply means a reply has been started but needs more bytes.
	StateMidReply

	// StatePoisoned is terminal and reached only through a *ProtocolError.
	StatePoisoned
)

func (s ReaderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMidReply:
		return "mid-reply"
	case StatePoisoned:
		return "poisoned"
	default:
		return fmt.Sprintf("ReaderState(%d)", int(s))
	}
}

type stepResult int

const (
	stepNeedMore stepResult = iota
	stepProgress
	stepValue
)

var replacementChar = []byte("\uFFFD")

// Reader incrementally decodes replies from bytes handed to Feed.
//
// Decoding state lives in an explicit stack of tasks rather than on the call
// stack, so a reply cut anywhere resumes exactly where it stopped once more bytes
// arrive. A Reader is not safe for concurrent use.
type Reader struct {
	opts Options
	log  *zap.Logger

	buf   buffer
	tasks []task

	// err is set once the reader is poisoned.
	err error

	// deferred holds a non-fatal error that is reported once the current root
	// reply has been read completely.
	deferred error
}

// NewReader returns a Reader configured by opts. A reader built from invalid
// options starts out poisoned with the error from Options.Validate.
func NewReader(opts Options) *Reader {
	opts = opts.withDefaults()

	r := &Reader{
		opts:  opts,
		log:   opts.Log,
		tasks: make([]task, 0, 8),
	}

	if err := opts.Validate(); err != nil {
		r.poison(err)
	}

	return r
}

// Feed appends p to the reader's buffer. The bytes are copied; no decoding
// happens here. Bytes fed to a poisoned reader are dropped.
func (r *Reader) Feed(p []byte) {
	if r.err != nil {
		return
	}

	r.buf.release(r.opts.MaxBuf)
	r.buf.write(p)
}

// GetReply decodes one root reply from the buffered bytes.
//
// It returns ErrNeedMoreData when the buffer does not hold the rest of the reply
// yet, keeping all progress for the next call. A *ProtocolError poisons the
// reader: every later call returns the same error. Otherwise the decoded value
// is returned, possibly together with a non-fatal error (a raised *ReplyError or
// ErrInvalidUTF8) that belongs to that reply.
func (r *Reader) GetReply() (Value, error) {
	if r.err != nil {
		return Value{}, r.err
	}

	defer r.buf.compact(compactThreshold)

	if len(r.tasks) == 0 {
		if r.buf.len() == 0 {
			return Value{}, ErrNeedMoreData
		}

		r.tasks = append(r.tasks, task{state: taskAwaitingTag, parent: -1})
	}

	for {
		v, result, err := r.step()
		if err != nil {
			return Value{}, r.poison(err)
		}

		switch result {
		case stepNeedMore:
			return Value{}, ErrNeedMoreData

		case stepValue:
			if root, done := r.attach(v); done {
				err := r.deferred
				r.deferred = nil

				return root, err
			}
		}
	}
}

// State reports whether the reader is idle, in the middle of a reply or poisoned.
func (r *Reader) State() ReaderState {
	switch {
	case r.err != nil:
		return StatePoisoned
	case len(r.tasks) > 0:
		return StateMidReply
	default:
		return StateIdle
	}
}

// Err returns the protocol error that poisoned the reader, if any.
func (r *Reader) Err() error {
	return r.err
}

// Buffered returns the number of fed bytes not consumed yet.
func (r *Reader) Buffered() int {
	return r.buf.len()
}

// HasData reports whether unconsumed bytes are buffered.
func (r *Reader) HasData() bool {
	return r.buf.len() > 0
}

// MaxBuf returns the idle buffer capacity limit, negative when unlimited.
func (r *Reader) MaxBuf() int {
	return r.opts.MaxBuf
}

// SetMaxBuf changes the idle buffer capacity limit. Zero restores DefaultMaxBuf,
// a negative value disables releasing the buffer.
func (r *Reader) SetMaxBuf(n int) {
	if n == 0 {
		n = DefaultMaxBuf
	}

	r.opts.MaxBuf = n
}

// Reset discards all buffered bytes and decoding progress. A poisoned reader
// stays poisoned and keeps returning its protocol error.
func (r *Reader) Reset() {
	r.buf.reset()

	for i := range r.tasks {
		r.tasks[i] = task{}
	}
	r.tasks = r.tasks[:0]

	r.deferred = nil
}

func (r *Reader) poison(err error) error {
	r.err = err
	r.deferred = nil

	r.log.Debug("Reader poisoned",
		zap.Error(err),
		zap.Int("depth", len(r.tasks)),
		zap.Int("buffered", r.buf.len()))

	for i := range r.tasks {
		r.tasks[i] = task{}
	}
	r.tasks = r.tasks[:0]
	r.buf.reset()

	return err
}

// step advances the top task of the stack.
func (r *Reader) step() (Value, stepResult, error) {
	idx := len(r.tasks) - 1
	t := &r.tasks[idx]

	switch t.state {
	case taskAwaitingTag:
		return r.readTag(t)

	case taskAwaitingLine:
		return r.readLine(idx, t)

	case taskAwaitingBulk:
		return r.readBulk(t)

	case taskAwaitingChildren:
		r.pushChild(idx)
		return Value{}, stepProgress, nil

	default:
		return Value{}, stepNeedMore, fmt.Errorf("reader task %d in unexpected state %s", idx, t)
	}
}

func (r *Reader) readTag(t *task) (Value, stepResult, error) {
	offset := r.buf.offset()

	c, ok := r.buf.readByte()
	if !ok {
		return Value{}, stepNeedMore, nil
	}

	k := Kind(c)
	if !k.Supported(r.opts.Protocol) {
		return Value{}, stepNeedMore, protocolErrorf(offset, ErrUnknownType,
			"got %q as reply type byte", c)
	}

	t.kind = k
	t.state = taskAwaitingLine

	return Value{}, stepProgress, nil
}

func (r *Reader) readLine(idx int, t *task) (Value, stepResult, error) {
	offset := r.buf.offset()

	line, ok := r.buf.readLine()
	if !ok {
		return Value{}, stepNeedMore, nil
	}

	switch {
	case t.kind.isBulk():
		n, ok := parseInt(line)
		if !ok || n < -1 || n > math.MaxInt-2 {
			return Value{}, stepNeedMore, protocolErrorf(offset, ErrBadBulkLength, "%q", line)
		}

		if n == -1 {
			return Value{Kind: KindNull}, stepValue, nil
		}

		t.size = int(n)
		t.state = taskAwaitingBulk

		return Value{}, stepProgress, nil

	case t.kind.IsAggregate():
		n, ok := parseInt(line)
		if !ok || n < -1 || n > math.MaxInt/2 ||
			(r.opts.MaxElements > 0 && n > r.opts.MaxElements) {
			return Value{}, stepNeedMore, protocolErrorf(offset, ErrBadAggregateLength, "%q", line)
		}

		if n == -1 {
			return Value{Kind: KindNull}, stepValue, nil
		}

		if n == 0 {
			return r.finishAggregate(Value{Kind: t.kind, Elems: []Value{}}), stepValue, nil
		}

		t.size = childCount(t.kind, int(n))
		t.value = Value{Kind: t.kind, Elems: make([]Value, 0, min(t.size, 1024))}
		t.state = taskAwaitingChildren
		r.pushChild(idx)

		return Value{}, stepProgress, nil

	default:
		v, err := r.lineValue(t.kind, line, offset)
		if err != nil {
			return Value{}, stepNeedMore, err
		}

		return v, stepValue, nil
	}
}

func (r *Reader) lineValue(k Kind, line []byte, offset int) (Value, error) {
	switch k {
	case KindSimpleString, KindError:
		if bytes.ContainsAny(line, "\r\n") {
			return Value{}, protocolErrorf(offset, ErrBadSimpleString, "%q", line)
		}

		if k == KindError {
			return r.replyError(k, line), nil
		}

		return Value{Kind: k, Str: r.text(k, line)}, nil

	case KindInteger:
		n, ok := parseInt(line)
		if !ok {
			return Value{}, protocolErrorf(offset, ErrBadInteger, "%q", line)
		}

		return Value{Kind: k, Int: n}, nil

	case KindDouble:
		f, ok := parseDouble(line)
		if !ok {
			return Value{}, protocolErrorf(offset, ErrBadDouble, "%q", line)
		}

		v := Value{Kind: k, Float: f, Str: bytes.Clone(line)}
		if r.opts.DoubleHook != nil {
			v.Hooked, v.Custom = true, r.opts.DoubleHook(f, string(line))
		}

		return v, nil

	case KindBoolean:
		if len(line) != 1 || (line[0] != 't' && line[0] != 'f') {
			return Value{}, protocolErrorf(offset, ErrBadBool, "%q", line)
		}

		v := Value{Kind: k, Bool: line[0] == 't'}
		if r.opts.BooleanHook != nil {
			v.Hooked, v.Custom = true, r.opts.BooleanHook(v.Bool)
		}

		return v, nil

	case KindBigNumber:
		if !isBigNumber(line) {
			return Value{}, protocolErrorf(offset, ErrBadBigNumber, "%q", line)
		}

		v := Value{Kind: k, Str: bytes.Clone(line)}
		if r.opts.BigNumberHook != nil {
			v.Hooked, v.Custom = true, r.opts.BigNumberHook(string(line))
		}

		return v, nil

	case KindNull:
		if len(line) != 0 {
			return Value{}, protocolErrorf(offset, ErrBadNull, "%q", line)
		}

		return Value{Kind: KindNull}, nil

	default:
		return Value{}, protocolErrorf(offset, ErrUnknownType, "no line decoder for %s", k)
	}
}

func (r *Reader) readBulk(t *task) (Value, stepResult, error) {
	if r.buf.len() < t.size+len(crlf) {
		return Value{}, stepNeedMore, nil
	}

	offset := r.buf.offset()
	p := r.buf.next(t.size)

	if !bytes.Equal(r.buf.next(len(crlf)), crlf) {
		return Value{}, stepNeedMore, protocolErrorf(offset+t.size, ErrBadTerminator,
			"after %d byte %s", t.size, t.kind)
	}

	switch t.kind {
	case KindBulkError:
		return r.replyError(t.kind, p), stepValue, nil

	case KindVerbatim:
		if len(p) < 4 || p[3] != ':' {
			return Value{}, stepNeedMore, protocolErrorf(offset, ErrBadVerbatim, "%q", p)
		}

		v := Value{Kind: t.kind, Format: string(p[:3]), Str: r.text(t.kind, p[4:])}
		if r.opts.VerbatimHook != nil {
			v.Hooked, v.Custom = true, r.opts.VerbatimHook(v.Format, v.Str)
		}

		return v, stepValue, nil

	default:
		return Value{Kind: t.kind, Str: r.text(t.kind, p)}, stepValue, nil
	}
}

func (r *Reader) pushChild(parent int) {
	r.tasks = append(r.tasks, task{state: taskAwaitingTag, parent: parent})
}

// attach pops the finished top task and hands v to its parent, completing
// parents whose last child arrived. It reports the root value once the stack
// is empty.
func (r *Reader) attach(v Value) (Value, bool) {
	for {
		idx := len(r.tasks) - 1
		parent := r.tasks[idx].parent

		r.tasks[idx] = task{}
		r.tasks = r.tasks[:idx]

		if parent < 0 {
			return v, true
		}

		p := &r.tasks[parent]
		p.value.Elems = append(p.value.Elems, v)
		p.size--

		if p.size > 0 {
			r.pushChild(parent)
			return Value{}, false
		}

		v = r.finishAggregate(p.value)
	}
}

func (r *Reader) finishAggregate(v Value) Value {
	switch v.Kind {
	case KindMap:
		pairs := make([]Pair, len(v.Elems)/2)
		for i := range pairs {
			pairs[i] = Pair{Key: v.Elems[2*i], Value: v.Elems[2*i+1]}
		}

		return Value{Kind: KindMap, Pairs: pairs}

	case KindSet:
		if r.opts.SetsAsArrays {
			v.Kind = KindArray
		}
	}

	return v
}

func (r *Reader) replyError(k Kind, msg []byte) Value {
	err := &ReplyError{
		Message: string(bytes.ToValidUTF8(msg, replacementChar)),
		Bulk:    k == KindBulkError,
	}

	v := Value{Kind: k, Err: err}

	switch {
	case r.opts.ErrorHook != nil:
		v.Hooked, v.Custom = true, r.opts.ErrorHook(err)
	case r.opts.RaiseReplyErrors:
		r.deferError(err)
	}

	return v
}

// text copies a string payload out of the buffer, applying the configured
// encoding.
func (r *Reader) text(k Kind, p []byte) []byte {
	switch r.opts.Encoding {
	case EncodingUTF8Strict:
		if !utf8.Valid(p) {
			r.deferError(fmt.Errorf("Failed to decode %s: %w", k, ErrInvalidUTF8))
		}

	case EncodingUTF8Replace:
		return bytes.ToValidUTF8(p, replacementChar)
	}

	return bytes.Clone(p)
}

func (r *Reader) deferError(err error) {
	if r.deferred == nil {
		r.deferred = err
	}
}

// parseInt parses a decimal integer: an optional '-', no '+', no leading zeros.
func parseInt(p []byte) (int64, bool) {
	if len(p) == 0 {
		return 0, false
	}

	neg := p[0] == '-'
	if neg {
		p = p[1:]
		if len(p) == 0 {
			return 0, false
		}
	}

	if p[0] == '0' && (len(p) > 1 || neg) {
		return 0, false
	}

	var n uint64
	for _, c := range p {
		if c < '0' || c > '9' {
			return 0, false
		}

		d := uint64(c - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0, false
		}

		n = n*10 + d
	}

	if neg {
		if n > 1<<63 {
			return 0, false
		}

		return -int64(n), true
	}

	if n > math.MaxInt64 {
		return 0, false
	}

	return int64(n), true
}

// maxDoubleLen is the longest double text accepted on the wire.
const maxDoubleLen = 326

func parseDouble(p []byte) (float64, bool) {
	if len(p) == 0 || len(p) > maxDoubleLen {
		return 0, false
	}

	s := string(p)

	switch strings.ToLower(s) {
	case "inf", "+inf":
		return math.Inf(1), true
	case "-inf":
		return math.Inf(-1), true
	case "nan":
		return math.NaN(), true
	}

	if !isDecimal(p) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// isDecimal reports whether p is a plain decimal float: an optional sign,
// digits with at most one '.', and an optional exponent. Go literal syntax such
// as '_' separators and hex floats is rejected.
func isDecimal(p []byte) bool {
	i := 0
	if i < len(p) && (p[i] == '-' || p[i] == '+') {
		i++
	}

	digits := 0
	for ; i < len(p) && p[i] >= '0' && p[i] <= '9'; i++ {
		digits++
	}

	if i < len(p) && p[i] == '.' {
		i++
		for ; i < len(p) && p[i] >= '0' && p[i] <= '9'; i++ {
			digits++
		}
	}

	if digits == 0 {
		return false
	}

	if i < len(p) && (p[i] == 'e' || p[i] == 'E') {
		i++
		if i < len(p) && (p[i] == '-' || p[i] == '+') {
			i++
		}

		exp := 0
		for ; i < len(p) && p[i] >= '0' && p[i] <= '9'; i++ {
			exp++
		}

		if exp == 0 {
			return false
		}
	}

	return i == len(p)
}

func isBigNumber(p []byte) bool {
	if len(p) > 0 && p[0] == '-' {
		p = p[1:]
	}

	if len(p) == 0 {
		return false
	}

	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
