package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"vortexl2/pkg/model"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		f       model.Forward
		wantErr bool
	}{
		{model.Forward{LocalPort: 8080, TargetHost: "10.100.0.2", TargetPort: 80}, false},
		{model.Forward{LocalPort: 0, TargetHost: "10.100.0.2", TargetPort: 80}, true},
		{model.Forward{LocalPort: 8080, TargetHost: "", TargetPort: 80}, true},
		{model.Forward{LocalPort: 8080, TargetHost: "h", TargetPort: 70000}, true},
	}
	for _, tc := range cases {
		err := Validate(tc.f)
		if tc.wantErr && !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidArgument", tc.f, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("Validate(%+v) = %v", tc.f, err)
		}
	}
}

func TestRelayPipesBothWays(t *testing.T) {
	// Echo server standing in for the service on the far side of the tunnel.
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer echo.Close()
	go func() {
		for {
			c, err := echo.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(c)
		}
	}()

	targetPort := echo.Addr().(*net.TCPAddr).Port
	localPort := freePort(t)
	relay := NewRelay(model.Forward{LocalPort: localPort, TargetHost: "127.0.0.1", TargetPort: targetPort})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- relay.Run(ctx) }()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	msg := []byte("ping across the tunnel")
	if _, err := conn.Write(msg); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("echo mismatch: %q", buf)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
