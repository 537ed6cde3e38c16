package forward

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"vortexl2/pkg/model"
)

// ServiceName returns the supervisor service name for a forward entry.
func ServiceName(f model.Forward) string {
	return fmt.Sprintf("forward-%d", f.LocalPort)
}

// Relay is an in-process TCP port forward: connections accepted on LocalPort
// are piped to TargetHost:TargetPort across the tunnel. It implements
// supervisor.Runner.
type Relay struct {
	Forward model.Forward

	// DialTimeout bounds the connect to the target; relays must not hang on
	// an unreachable far side.
	DialTimeout time.Duration
}

// NewRelay returns a relay for one forward entry.
func NewRelay(f model.Forward) *Relay {
	return &Relay{Forward: f, DialTimeout: 5 * time.Second}
}

// Run listens and serves until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", r.Forward.LocalPort)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	target := net.JoinHostPort(r.Forward.TargetHost, fmt.Sprintf("%d", r.Forward.TargetPort))
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", addr, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.serve(ctx, conn, target)
		}()
	}
}

func (r *Relay) serve(ctx context.Context, client net.Conn, target string) {
	defer client.Close()
	d := net.Dialer{Timeout: r.DialTimeout}
	upstream, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		log.Printf("forward %d: dial %s failed: %v", r.Forward.LocalPort, target, err)
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	copyHalf := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		// Half-close so the other direction can drain.
		if tc, ok := dst.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		done <- struct{}{}
	}
	go copyHalf(upstream, client)
	go copyHalf(client, upstream)
	select {
	case <-done:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Validate rejects forwards that cannot work before any state is touched.
func Validate(f model.Forward) error {
	if f.LocalPort <= 0 || f.LocalPort > 65535 {
		return fmt.Errorf("%w: local port %d out of range", model.ErrInvalidArgument, f.LocalPort)
	}
	if f.TargetPort <= 0 || f.TargetPort > 65535 {
		return fmt.Errorf("%w: target port %d out of range", model.ErrInvalidArgument, f.TargetPort)
	}
	if f.TargetHost == "" {
		return fmt.Errorf("%w: target host is required", model.ErrInvalidArgument)
	}
	return nil
}
