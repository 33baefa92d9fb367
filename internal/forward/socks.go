package forward

import (
	"context"
	"io"
	"log"
	"net"
	"strconv"

	"github.com/armon/go-socks5"

	"sshpilot/internal/apperr"
	"sshpilot/internal/logging"
)

// passResolver leaves domain names unresolved so the AddrSpec keeps its
// FQDN and the SSH server does the lookup on its side of the tunnel.
type passResolver struct{}

func (passResolver) Resolve(ctx context.Context, name string) (context.Context, net.IP, error) {
	return ctx, nil, nil
}

// startDynamic binds a local SOCKS5 endpoint whose CONNECT requests open
// direct-tcpip channels through the session. BIND and UDP ASSOCIATE are
// answered with command-not-supported by the server library.
func (r *Runtime) startDynamic(ctx context.Context, e *entry, sess Session) error {
	spec := e.spec

	srv, err := socks5.New(&socks5.Config{
		Resolver: passResolver{},
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return nil, err
			}
			return sess.DialDirect(host, uint16(port))
		},
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		return apperr.New(apperr.PortForward, "socks5 server", err)
	}

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
				go closeOnCancel(ctx, conn)
				if err := srv.ServeConn(conn); err != nil && ctx.Err() == nil {
					logging.Debugf("forward", "%s: %v", spec.Name(), err)
				}
			}()
		}
	}()
	return nil
}
