package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient retrieves pages. Implementations must honour ctx cancellation.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Get(ctx context.Context, url string) (*Response, error)
	Close() error
}

// RenderOptions only affect browser-backed clients.
type RenderOptions struct {
	ViewportWidth      int
	ViewportHeight     int
	WaitForNetworkIdle bool
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	Render  RenderOptions
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}
