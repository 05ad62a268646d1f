package tunnel

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// executor runs an inbound http_request frame against the agent's own
// HTTP surface without opening a socket back to itself: the frame is
// materialized into a fasthttp.RequestCtx and driven through a
// fasthttp.RequestHandler built once from the real net/http.Handler via
// fasthttpadaptor.NewFastHTTPHandler (spec.md §4.11).
type executor struct {
	handler fasthttp.RequestHandler
}

func newExecutor(h http.Handler) *executor {
	return &executor{handler: fasthttpadaptor.NewFastHTTPHandler(h)}
}

func (e *executor) execute(f Frame) Frame {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(f.Method)
	ctx.Request.SetRequestURI(f.Path)
	ctx.Request.SetBody(f.Body)
	for k, v := range f.Header {
		ctx.Request.Header.Set(k, v)
	}

	e.handler(&ctx)

	respHeader := map[string]string{}
	ctx.Response.Header.VisitAll(func(k, v []byte) {
		respHeader[string(k)] = string(v)
	})

	return Frame{
		Kind:      FrameHTTPResponse,
		RequestID: f.RequestID,
		Status:    ctx.Response.StatusCode(),
		Header:    respHeader,
		Body:      append([]byte(nil), ctx.Response.Body()...),
	}
}
