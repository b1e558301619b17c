package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// Lifecycle ties a server and the resources it uses to the start and stop
// hooks, which run on different goroutines. A stop that arrives before the
// server is registered still releases everything and keeps it from serving.
type Lifecycle struct {
	mu      sync.Mutex
	server  *http.Server
	closers []func()
	stopped bool
}

// Release registers functions to call on [Lifecycle.Shutdown], in reverse
// order. After a shutdown they are called right away.
func (l *Lifecycle) Release(closers ...func()) {
	l.mu.Lock()
	if !l.stopped {
		l.closers = append(l.closers, closers...)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// Serve runs server until [Lifecycle.Shutdown]. It returns
// [http.ErrServerClosed] when the lifecycle is already shut down.
func (l *Lifecycle) Serve(server *http.Server) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return http.ErrServerClosed
	}
	l.server = server
	l.mu.Unlock()
	return server.ListenAndServe()
}

// Shutdown gracefully stops the server, if any, then calls the registered
// closers. Later calls do nothing.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	server, closers := l.server, l.closers
	l.closers = nil
	l.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
