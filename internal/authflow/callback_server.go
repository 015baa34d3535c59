package authflow

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultCallbackTimeout is how long the code flow waits for the user to
// finish in the browser.
const DefaultCallbackTimeout = 300 * time.Second

const (
	// flushGrace is how long the server keeps running after answering the
	// redirect, so the browser receives the page before the listener dies.
	flushGrace = 1 * time.Second

	// shutdownTimeout bounds graceful shutdown in Stop.
	shutdownTimeout = 5 * time.Second
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successPage = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorPage   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// callbackHeaders hardens the single page this server ever serves.
var callbackHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": "default-src 'self'; style-src 'unsafe-inline'",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
}

// CallbackResult is what the authorization server delivered to the redirect
// URI: an authorization code, or an error.
type CallbackResult struct {
	// Code is the authorization code on success.
	Code string

	// State echoes the state parameter for CSRF verification.
	State string

	// Error is the OAuth error code when the authorization failed.
	Error string

	// ErrorDescription is the human-readable error description.
	ErrorDescription string
}

// IsError reports whether the callback carried an error instead of a code.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a short-lived localhost-only HTTP server that receives
// one OAuth redirect, publishes the result, and shuts down.
type CallbackServer struct {
	port    int
	baseURL string

	ln      net.Listener
	httpSrv *http.Server

	first    sync.Once
	results  chan *CallbackResult
	serveErr chan error
}

// NewCallbackServer creates a callback server that will bind the given
// port. Port 0 lets the operating system assign a free one; the bound port
// is reported by Port after Start.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:     port,
		results:  make(chan *CallbackResult, 1),
		serveErr: make(chan error, 1),
	}
}

// Start binds 127.0.0.1 and begins serving. The server stops when the
// context is cancelled, so an abandoned flow always releases the port.
// Returns the redirect URI to register with the authorization server.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.baseURL = "http://localhost:" + strconv.Itoa(s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", s.handleCallback)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serveErr := s.httpSrv.Serve(ln)
		if serveErr != nil && serveErr != http.ErrServerClosed {
			select {
			case s.serveErr <- serveErr:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// WaitForCallback blocks until the redirect arrives, the server fails, or
// the context is done.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.results:
		return result, nil
	case err := <-s.serveErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback accepts exactly one redirect. Later requests (refresh,
// prefetch, a replayed link) get a 400.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	accepted := false
	s.first.Do(func() {
		accepted = true
		s.serveRedirect(w, r)
	})

	if !accepted {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// serveRedirect parses the redirect parameters, renders the closing page,
// and publishes the result. The server tears itself down after a short
// grace so the page reaches the browser first.
func (s *CallbackServer) serveRedirect(w http.ResponseWriter, r *http.Request) {
	for name, value := range callbackHeaders {
		w.Header().Set(name, value)
	}

	q := r.URL.Query()
	result := &CallbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var renderErr error
	if result.IsError() {
		renderErr = errorPage.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		renderErr = successPage.Execute(w, nil)
	}
	if renderErr != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.results <- result:
	default:
	}

	time.AfterFunc(flushGrace, s.Stop)
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.httpSrv.Shutdown(ctx)
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

// RedirectURI returns the redirect URI served by this callback server.
func (s *CallbackServer) RedirectURI() string {
	return s.baseURL + "/callback"
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	return s.port
}
