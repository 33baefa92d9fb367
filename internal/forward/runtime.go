// Package forward runs the port-forwarding tunnels: local listeners over
// direct-tcpip, server-side listeners over tcpip-forward, and a SOCKS5
// endpoint whose CONNECT target is dialed through the session.
package forward

import (
	"context"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"sshpilot/internal/apperr"
	"sshpilot/internal/config"
	"sshpilot/internal/logging"
)

// Session is the slice of the transport the runtime needs. The concrete
// implementation is sshc.Session.
type Session interface {
	DialDirect(host string, port uint16) (net.Conn, error)
	ListenRemote(bindAddr string, port uint16) (net.Listener, error)
}

// SessionProvider resolves the active session for a connection, or reports
// that none is up.
type SessionProvider interface {
	SessionFor(connectionID string) (Session, bool)
}

type entry struct {
	spec         config.PortForward
	connectionID string
	cancel       context.CancelFunc
	done         chan struct{}  // closed when the accept loop exits
	conns        sync.WaitGroup // live per-connection handlers
}

// drain waits for the accept loop and every connection handler it spawned.
// Handlers register before the loop can exit, so waiting on done first is
// race-free.
func (e *entry) drain() {
	e.cancel()
	<-e.done
	e.conns.Wait()
}

// Runtime owns every running tunnel, keyed by forward id.
type Runtime struct {
	provider SessionProvider
	notify   func(connectionID, reason string)

	mu      sync.Mutex
	entries map[string]*entry
	failed  map[string]string // id -> reason, for reconciliation
}

func NewRuntime(provider SessionProvider) *Runtime {
	return &Runtime{
		provider: provider,
		entries:  map[string]*entry{},
		failed:   map[string]string{},
	}
}

// SetFailureNotifier installs a callback fired when a dying transport tears
// tunnels down. Must be set before the first Start.
func (r *Runtime) SetFailureNotifier(fn func(connectionID, reason string)) {
	r.notify = fn
}

// Start brings a tunnel up. Binding happens synchronously, so address
// conflicts surface here; the accept loop then runs in the background.
// Starting an id that is already running is a no-op.
func (r *Runtime) Start(spec config.PortForward) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, running := r.entries[spec.ID]; running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	sess, ok := r.provider.SessionFor(spec.ConnectionID)
	if !ok {
		return apperr.Newf(apperr.PortForward, "connection for %q is not active", spec.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{spec: spec, connectionID: spec.ConnectionID, cancel: cancel, done: make(chan struct{})}

	var bindErr error
	switch spec.Kind {
	case config.ForwardLocal:
		bindErr = r.startLocal(ctx, e, sess)
	case config.ForwardRemote:
		bindErr = r.startRemote(ctx, e, sess)
	case config.ForwardDynamic:
		bindErr = r.startDynamic(ctx, e, sess)
	}
	if bindErr != nil {
		cancel()
		r.setFailed(spec.ID, bindErr.Error())
		return bindErr
	}

	r.mu.Lock()
	r.entries[spec.ID] = e
	delete(r.failed, spec.ID)
	r.mu.Unlock()

	logging.Infof("forward", "started %s (%s)", spec.Name(), spec.Kind)
	return nil
}

// Stop cancels a tunnel and waits for its goroutines to drain. Unknown ids
// are a no-op.
func (r *Runtime) Stop(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	delete(r.failed, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.drain()
	logging.Infof("forward", "stopped %s", e.spec.Name())
}

// IsRunning reports whether the id has a live tunnel.
func (r *Runtime) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Status reconciles one forward against the runtime for the list view.
func (r *Runtime) Status(id string) config.ForwardStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return config.ForwardStatus{State: config.ForwardRunning}
	}
	if reason, ok := r.failed[id]; ok {
		return config.ForwardStatus{State: config.ForwardFailed, Reason: reason}
	}
	return config.ForwardStatus{State: config.ForwardStopped}
}

// FailAllOnConnection marks every tunnel riding the named connection failed
// and tears it down. Called when a transport dies.
func (r *Runtime) FailAllOnConnection(connectionID, reason string) {
	r.mu.Lock()
	var victims []*entry
	for id, e := range r.entries {
		if e.connectionID == connectionID {
			victims = append(victims, e)
			delete(r.entries, id)
			r.failed[id] = reason
		}
	}
	r.mu.Unlock()

	for _, e := range victims {
		e.drain()
		logging.Warnf("forward", "failed %s: %s", e.spec.Name(), reason)
	}
	if len(victims) > 0 && r.notify != nil {
		r.notify(connectionID, reason)
	}
}

// StopAll tears down every tunnel; used on shutdown.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	var all []*entry
	for id, e := range r.entries {
		all = append(all, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()
	for _, e := range all {
		e.drain()
	}
}

func (r *Runtime) setFailed(id, reason string) {
	r.mu.Lock()
	r.failed[id] = reason
	r.mu.Unlock()
}

// startLocal binds the local side of a -L tunnel and bridges each accepted
// connection to the service over a direct-tcpip channel.
func (r *Runtime) startLocal(ctx context.Context, e *entry, sess Session) error {
	spec := e.spec
	ln, err := net.Listen("tcp", spec.LocalAddress())
	if err != nil {
		return apperr.New(apperr.PortForward, "bind "+spec.LocalAddress(), err)
	}

	go func() {
		defer close(e.done)
		go closeOnCancel(ctx, ln)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			e.conns.Add(1)
			go func() {
				defer e.conns.Done()
				defer conn.Close()
				remote, err := sess.DialDirect(spec.ServiceHost, spec.ServicePort)
				if err != nil {
					logging.Warnf("forward", "%s: %v", spec.Name(), err)
					return
				}
				pump(ctx, conn, remote)
			}()
		}
	}()
	return nil
}

// startRemote asks the server for a tcpip-forward listener and bridges each
// inbound connection to the local service.
func (r *Runtime) startRemote(ctx context.Context, e *entry, sess Session) error {
	spec := e.spec
	bind := spec.RemoteBindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}
	ln, err := sess.ListenRemote(bind, spec.LocalPort)
	if err != nil {
		return err
	}

	go func() {
		defer close(e.done)
		go closeOnCancel(ctx, ln)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			e.conns.Add(1)
			go func() {
				defer e.conns.Done()
				defer conn.Close()
				local, err := net.Dial("tcp", spec.ServiceAddress())
				if err != nil {
					logging.Warnf("forward", "%s: %v", spec.Name(), err)
					return
				}
				pump(ctx, conn, local)
			}()
		}
	}()
	return nil
}

func closeOnCancel(ctx context.Context, c io.Closer) {
	<-ctx.Done()
	c.Close()
}

// pump shuttles bytes both ways until either side closes.
func pump(ctx context.Context, a, b net.Conn) {
	defer a.Close()
	defer b.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.Copy(a, b)
		a.Close()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(b, a)
		b.Close()
		return err
	})
	go closeOnCancel(ctx, a)
	_ = g.Wait()
}
