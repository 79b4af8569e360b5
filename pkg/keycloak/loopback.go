package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/todo/pkg/httpx"
	"github.com/aussiebroadwan/todo/pkg/slogx"
)

const callbackPath = "/callback"

type callbackResult struct {
	code string
	err  error
}

// loopback is the one-shot HTTP listener the realm redirects the browser
// back to (RFC 8252 section 7.3). It lives for exactly one login.
type loopback struct {
	ln     net.Listener
	srv    *http.Server
	state  string
	result chan callbackResult
}

// listenLoopback binds 127.0.0.1:port. Port 0 picks a free port, which only
// works if the realm allows a wildcard redirect URI.
func listenLoopback(port int, state string, logger *slog.Logger) (*loopback, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for login callback: %w", err)
	}

	lb := &loopback{
		ln:     ln,
		state:  state,
		result: make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, lb.handleCallback)

	lb.srv = &http.Server{
		Handler:           httpx.Chain(mux, slogx.HTTPMiddleware(logger), httpx.Recover),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := lb.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lb.deliver(callbackResult{err: fmt.Errorf("login callback server: %w", err)})
		}
	}()

	return lb, nil
}

func (lb *loopback) RedirectURI() string {
	return "http://" + lb.ln.Addr().String() + callbackPath
}

func (lb *loopback) handleCallback(w http.ResponseWriter, r *http.Request) {
	code, state, err := ParseAuthorizationCallback(r.URL.String())
	switch {
	case err != nil:
		slogx.FromContext(r.Context()).Warn("login callback error", "err", err)
		httpx.WritePage(w, http.StatusBadRequest, "Login failed", "You can close this tab and try again from the terminal.")
		lb.deliver(callbackResult{err: err})
		return
	case state != lb.state:
		// Could be a stale tab from an earlier attempt. Keep waiting.
		httpx.WritePage(w, http.StatusBadRequest, "Login failed", "This login link has expired. Start again from the terminal.")
		return
	}

	httpx.WritePage(w, http.StatusOK, "Logged in", "You can close this tab and return to the terminal.")
	lb.deliver(callbackResult{code: code})
}

// deliver keeps the first result; later callbacks are dropped.
func (lb *loopback) deliver(res callbackResult) {
	select {
	case lb.result <- res:
	default:
	}
}

// Wait blocks for the callback, ctx, or timeout, whichever comes first.
func (lb *loopback) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case res := <-lb.result:
		return res.code, res.err
	case <-expired:
		return "", ErrLoginTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (lb *loopback) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return lb.srv.Shutdown(ctx)
}
