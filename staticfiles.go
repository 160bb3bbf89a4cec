package httpcore

import (
	"context"
	"errors"
	"os"

	"github.com/valyala/fasthttp"
)

// AddFile registers a GET handler at uriPath that serves the file at fsPath.
// If contentType is empty it is detected from fsPath's extension. The file
// is read fresh on every request (no caching — this core has no
// invalidation story for an externally-mutable file).
func (s *Server) AddFile(host, contentType, uriPath, fsPath string) (HandlerID, error) {
	if contentType == "" {
		contentType = contentTypeByExtension(fsPath)
	}
	e := &Entry{
		Method: fasthttp.MethodGet,
		Path:   uriPath,
		Host:   host,
		Callback: func(_ context.Context, _ Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
			resp := fasthttp.AcquireResponse()
			data, err := os.ReadFile(fsPath)
			switch {
			case errors.Is(err, os.ErrNotExist):
				resp.SetStatusCode(fasthttp.StatusNotFound)
				resp.SetBodyString(statusText(fasthttp.StatusNotFound))
				resp.Header.SetContentType("text/plain; charset=utf-8")
				return resp, nil
			case errors.Is(err, os.ErrPermission):
				resp.SetStatusCode(fasthttp.StatusForbidden)
				resp.SetBodyString(statusText(fasthttp.StatusForbidden))
				resp.Header.SetContentType("text/plain; charset=utf-8")
				return resp, nil
			case err != nil:
				resp.SetStatusCode(fasthttp.StatusInternalServerError)
				resp.SetBodyString(statusText(fasthttp.StatusInternalServerError))
				resp.Header.SetContentType("text/plain; charset=utf-8")
				return resp, nil
			}
			resp.SetStatusCode(fasthttp.StatusOK)
			resp.SetBody(data)
			resp.Header.SetContentType(contentType)
			return resp, nil
		},
	}
	return s.AddHandler(e)
}

// AddStatic registers a GET handler at uriPath that serves an in-memory
// blob. An empty contentType defaults to application/octet-stream.
func (s *Server) AddStatic(host, contentType, uriPath string, data []byte) (HandlerID, error) {
	if contentType == "" {
		contentType = defaultContentType
	}
	body := append([]byte(nil), data...)
	e := &Entry{
		Method: fasthttp.MethodGet,
		Path:   uriPath,
		Host:   host,
		Callback: func(_ context.Context, _ Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
			resp := fasthttp.AcquireResponse()
			resp.SetStatusCode(fasthttp.StatusOK)
			resp.SetBody(body)
			resp.Header.SetContentType(contentType)
			return resp, nil
		},
	}
	return s.AddHandler(e)
}
