// Package httpserver implements the builtin-http-server feature
// (SPEC_FULL.md §5): the host itself terminates inbound HTTP and
// drives matching components' wasi:http/incoming-handler export
// directly, without requiring an external httpserver capability
// provider. Grounded on pkg/ingress/proxy.go's listen/serve/shutdown
// shape, with the reverse-proxy backend replaced by an in-process
// component invocation.
package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/log"
)

const incomingHandlerOperation = "wasi:http/incoming-handler.handle"

// ComponentInvoker is the narrow slice of internal/host.Supervisor
// this package needs, defined here so httpserver is never imported by
// the thing it is decoupled from (the same pattern internal/ctlplane
// uses for its Host interface).
type ComponentInvoker interface {
	InvokeComponent(ctx context.Context, componentID, operation string, payload []byte) ([]byte, error)
}

// Server terminates inbound HTTP on Addr and dispatches each request
// to the component Router resolves for it.
type Server struct {
	addr    string
	router  *Router
	invoker ComponentInvoker

	httpServer *http.Server
}

func NewServer(addr string, router *Router, invoker ComponentInvoker) *Server {
	return &Server{addr: addr, router: router, invoker: invoker}
}

// Start listens on Addr and serves until ctx is canceled, then drains
// in-flight requests with a bounded grace period, mirroring
// pkg/ingress/proxy.go's Start.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      http.HandlerFunc(s.handle),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, fmt.Sprintf("listen on %s", s.addr), err)
	}

	log.Info(fmt.Sprintf("builtin http server listening on %s", s.addr))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("builtin http server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	componentID, ok := s.router.Route(r.Host, r.URL.Path)
	if !ok {
		http.Error(w, "no component routed for this request", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req := RequestEnvelope{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: map[string][]string(r.Header),
		Body:    body,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		http.Error(w, "failed to encode request", http.StatusInternalServerError)
		return
	}

	out, err := s.invoker.InvokeComponent(r.Context(), componentID, incomingHandlerOperation, payload)
	if err != nil {
		log.Logger.Warn().Err(err).Str("component", componentID).Msg("incoming-handler invocation failed")
		http.Error(w, "upstream component error", http.StatusBadGateway)
		return
	}

	var resp ResponseEnvelope
	if err := json.Unmarshal(out, &resp); err != nil {
		http.Error(w, "component returned a malformed response", http.StatusBadGateway)
		return
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = io.Copy(w, bytes.NewReader(resp.Body))
	}
}
