package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/respkit/client"
	"github.com/luma/respkit/format"
	"github.com/luma/respkit/protocol"
)

// maxBody bounds request bodies.
const maxBody = 8 << 20

var (
	ErrBadArgs     = errors.New("Body must be a JSON object with an 'args' array")
	ErrIncomplete  = errors.New("Input ends inside a reply")
	ErrUnsupported = errors.New("Argument type is not supported")
)

type Options struct {
	// Addr is the server /call talks to. /call is disabled when empty.
	Addr string

	// Reader configures decoding for /decode and /call.
	Reader protocol.Options

	Debug bool

	Log *zap.Logger
}

// NewRouter returns the HTTP API:
//
//	GET  /ping            liveness
//	POST /decode?path=    raw RESP body in, JSON array of replies out
//	POST /pack            {"args": [...]} or {"pipeline": [[...], ...]} in, RESP out
//	POST /call            {"args": [...]} in, JSON reply out
func NewRouter(options Options) *gin.Engine {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := setupRouter(options.Debug, log)
	h := &handlers{options: options, log: log}

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.POST("/decode", h.decode)
	r.POST("/pack", h.pack)

	if options.Addr != "" {
		r.POST("/call", h.call)
	}

	return r
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

type handlers struct {
	options Options
	log     *zap.Logger
}

func (h *handlers) decode(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	reader := protocol.NewReader(h.options.Reader)
	reader.Feed(body)

	var replies []protocol.Value

	for {
		v, err := reader.GetReply()
		if errors.Is(err, protocol.ErrNeedMoreData) {
			break
		}

		if errors.Is(err, protocol.ErrProtocol) {
			abort(c, http.StatusUnprocessableEntity, err)
			return
		}

		if err != nil {
			h.log.Debug("Reply carries an error", zap.Error(err))
		}

		replies = append(replies, v)
	}

	if reader.State() == protocol.StateMidReply || reader.HasData() {
		abort(c, http.StatusUnprocessableEntity,
			fmt.Errorf("%w: %d bytes left over", ErrIncomplete, reader.Buffered()))
		return
	}

	if path := c.Query("path"); path != "" {
		results := make([]gjson.Result, 0, len(replies))
		for _, v := range replies {
			res, err := format.Select(v, path)
			if err != nil {
				abort(c, http.StatusNotFound, err)
				return
			}
			results = append(results, res)
		}

		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, res := range results {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(res.Raw)
		}
		buf.WriteByte(']')

		c.Data(http.StatusOK, "application/json", buf.Bytes())
		return
	}

	doc, err := format.JSONArray(replies)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "application/json", doc)
}

func (h *handlers) pack(c *gin.Context) {
	body, err := readJSON(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	var cmds [][]interface{}

	if pipeline := gjson.GetBytes(body, "pipeline"); pipeline.IsArray() {
		for _, cmd := range pipeline.Array() {
			args, err := jsonArgs(cmd)
			if err != nil {
				abort(c, http.StatusBadRequest, err)
				return
			}
			cmds = append(cmds, args)
		}
	} else {
		args, err := jsonArgs(gjson.GetBytes(body, "args"))
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		cmds = append(cmds, args)
	}

	raw, err := protocol.PackPipeline(cmds...)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", raw)
}

func (h *handlers) call(c *gin.Context) {
	body, err := readJSON(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	args, err := jsonArgs(gjson.GetBytes(body, "args"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()

	conn, err := client.Dial(ctx, h.options.Addr, client.Options{
		Reader: h.options.Reader,
		Log:    h.log.Named("client"),
	})
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}
	defer conn.Close()

	v, err := conn.Do(ctx, args...)
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	doc, err := format.JSON(v)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "application/json", doc)
}

func readJSON(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrBadArgs
	}

	return body, nil
}

// jsonArgs converts a JSON array into command arguments. Numbers keep their
// JSON text so large integers survive unchanged.
func jsonArgs(list gjson.Result) ([]interface{}, error) {
	if !list.IsArray() {
		return nil, ErrBadArgs
	}

	items := list.Array()
	if len(items) == 0 {
		return nil, ErrBadArgs
	}

	args := make([]interface{}, len(items))

	for i, item := range items {
		switch item.Type {
		case gjson.String:
			args[i] = item.Str
		case gjson.Number:
			args[i] = item.Raw
		case gjson.True, gjson.False:
			args[i] = item.Bool()
		default:
			return nil, fmt.Errorf("%w: argument %d is %s", ErrUnsupported, i, item.Type)
		}
	}

	return args, nil
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
