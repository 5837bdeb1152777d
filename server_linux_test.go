//go:build linux

package sheep_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/brickingsoft/sheep"
	"github.com/brickingsoft/sheep/conn"
	"github.com/brickingsoft/sheep/task"
)

func TestEchoSingleLine(t *testing.T) {
	srv, err := sheep.NewServer("127.0.0.1:0", sheep.WithConcurrency(2))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	srv.SetHandler(func(c *conn.Conn) *task.Task[struct{}] {
		return task.New(func(ctx context.Context) (struct{}, error) {
			if _, err := c.Recv(ctx); err != nil {
				return struct{}{}, err
			}
			c.ReadBuffer().Swap(c.WriteBuffer())
			_, err := c.Send(ctx)
			return struct{}{}, err
		})
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveTask := srv.Serve(ctx)
	go func() {
		_, _ = task.Wait(ctx, serveTask)
	}()

	addr := srv.Addr().String()
	var cli net.Conn
	for i := 0; i < 20; i++ {
		cli, err = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("could not dial server: %v", err)
	}
	defer cli.Close()

	if _, err := cli.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 6)
	cli.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := net.Conn.Read(cli, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello\n" {
		t.Fatalf("expected echo of %q, got %q", "hello\n", buf)
	}
}
