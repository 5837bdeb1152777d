// Command echo is a minimal echo server: it receives once per connection
// and writes back exactly what it read.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brickingsoft/sheep"
	"github.com/brickingsoft/sheep/conn"
	"github.com/brickingsoft/sheep/task"
)

func session(c *conn.Conn) *task.Task[struct{}] {
	return task.New(func(ctx context.Context) (struct{}, error) {
		defer c.Close()

		n, err := c.Recv(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if n < 1 {
			return struct{}{}, nil
		}
		c.ReadBuffer().Swap(c.WriteBuffer())
		_, err = c.Send(ctx)
		return struct{}{}, err
	})
}

func main() {
	srv, err := sheep.NewServer("127.0.0.1:9090", sheep.WithConcurrency(4))
	if err != nil {
		log.Fatal(err)
	}
	srv.SetHandler(session)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveTask := srv.Serve(ctx)
	if _, err := task.Wait(ctx, serveTask); err != nil {
		log.Println("echo server stopped:", err)
	}
}
