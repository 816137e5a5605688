package client

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// callbackResult is what the authorization server sent back to the
// redirect URI.
type callbackResult struct {
	code             string
	state            string
	errorCode        string
	errorDescription string
}

func parseCallback(values url.Values) callbackResult {
	return callbackResult{
		code:             values.Get("code"),
		state:            values.Get("state"),
		errorCode:        values.Get("error"),
		errorDescription: values.Get("error_description"),
	}
}

// callbackServer is the loopback HTTP listener for the popup flow. One
// server handles all concurrent flows; results are routed by state.
type callbackServer struct {
	server  *http.Server
	addr    string
	path    string
	deliver func(callbackResult)
}

const callbackPage = `<!DOCTYPE html>
<html><head><title>Sign-in complete</title></head>
<body><p>Sign-in complete. You can close this window.</p></body></html>`

// newCallbackServer builds (without starting) the loopback server for the
// redirect URI. The URI must point at a loopback host for a native client.
func newCallbackServer(redirectURI string, deliver func(callbackResult)) (*callbackServer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[newCallbackServer] Parse redirect URI")
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}

	cs := &callbackServer{
		addr:    parsed.Host,
		path:    path,
		deliver: deliver,
	}

	router := chi.NewRouter()
	router.Get(path, cs.handleCallback)

	cs.server = &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return cs, nil
}

func (cs *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	result := parseCallback(r.URL.Query())
	if result.state == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(callbackPage))

	cs.deliver(result)
}

// start binds the listener and serves in a goroutine.
func (cs *callbackServer) start() error {
	listener, err := net.Listen("tcp", cs.addr)
	if err != nil {
		return errors.Wrap(err, "[callbackServer.start] Listen")
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("callback server stopped unexpectedly")
		}
	}()
	return nil
}

func (cs *callbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cs.server.Shutdown(ctx)
}
