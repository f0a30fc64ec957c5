package wyoming

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// DefaultURI is where the service listens unless configured otherwise.
const DefaultURI = "tcp://0.0.0.0:10300"

var ErrUnsupportedScheme = errors.New("wyoming: unsupported URI scheme")

// ParseURI splits a service URI into a network and address for net.Listen.
// Supported forms are tcp://host:port and unix:///path/to/socket.
func ParseURI(uri string) (network, address string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("wyoming: parse URI %q: %w", uri, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" || u.Port() == "" {
			return "", "", fmt.Errorf("wyoming: URI %q needs host:port", uri)
		}
		return "tcp", u.Host, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", "", fmt.Errorf("wyoming: URI %q needs a socket path", uri)
		}
		return "unix", path, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Server accepts Wyoming connections and serves each with its own Handler.
// All connections share Guard.
type Server struct {
	Info   Info
	Guard  *asr.Guard
	Logger *log.Logger
}

// ListenAndServe listens on uri and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, uri string) error {
	network, address, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if network == "unix" {
		// A socket left over from a previous run blocks Listen.
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wyoming: remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("wyoming: listen: %w", err)
	}
	s.logger().Info("listening", "uri", uri)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Accept fails. On
// return the listener and all connections are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ln.Close() })
	defer stop()

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("wyoming: accept: %w", err)
			}
			g.Go(func() error {
				s.serveConn(gctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	logger := s.logger().With("conn", uuid.NewString())
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Debug("connected", "remote", conn.RemoteAddr())
	r := bufio.NewReader(conn)
	h := NewHandler(s.Info, s.Guard, conn, logger)
	for {
		ev, err := ReadEvent(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				logger.Debug("disconnected", "discarded", h.Buffered())
			} else {
				logger.Warn("read failed, closing", "err", err)
			}
			return
		}
		if err := h.HandleEvent(ctx, ev); err != nil {
			if ctx.Err() == nil {
				logger.Warn("write failed, closing", "err", err)
			}
			return
		}
	}
}

func (s *Server) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}
