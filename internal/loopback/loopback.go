// Package loopback catches a provider redirect on a localhost listener so a
// headless caller can resume the authorization-code leg.
package loopback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

const callbackPath = "/callback"

// Listener serves a one-shot callback endpoint. The first request to
// /callback hands its query parameters to Wait; later requests get a plain
// acknowledgement.
type Listener struct {
	addr string
	srv  *http.Server

	once   sync.Once
	params chan url.Values
}

// New creates a Listener bound to addr.
func New(addr string) *Listener {
	return &Listener{
		addr:   addr,
		params: make(chan url.Values, 1),
	}
}

// Start begins listening and returns the redirect URL the provider should be
// sent back to.
func (l *Listener) Start() (string, error) {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return "", errors.Wrapf(err, "[Start] listen %s", l.addr)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		l.once.Do(func() {
			l.params <- req.URL.Query()
		})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Login received. You can close this window and return to the terminal.")
	})

	l.srv = &http.Server{Handler: r}
	go func() {
		_ = l.srv.Serve(ln)
	}()

	return fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath), nil
}

// Wait blocks until the provider redirects back or ctx is done.
func (l *Listener) Wait(ctx context.Context) (url.Values, error) {
	select {
	case params := <-l.params:
		return params, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "[Wait] no callback received")
	}
}

// Shutdown stops the listener.
func (l *Listener) Shutdown() error {
	if l.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}
