package conn_test

import (
	"context"
	"testing"

	"github.com/brickingsoft/sheep/conn"
)

func TestRecvWithoutBoundReactorFails(t *testing.T) {
	c := conn.New(-1, nil, 0)
	if _, err := c.Recv(context.Background()); err == nil {
		t.Fatal("expected Recv to fail before a reactor is bound")
	}
}

func TestSendWithoutBoundReactorFails(t *testing.T) {
	c := conn.New(-1, nil, 0)
	if _, err := c.Send(context.Background()); err == nil {
		t.Fatal("expected Send to fail before a reactor is bound")
	}
}

func TestBuffersAreIndependentAndSizedByDefault(t *testing.T) {
	c := conn.New(-1, nil, 0)
	if c.ReadBuffer().Cap() != 4096 {
		t.Fatalf("expected default buffer capacity 4096, got %d", c.ReadBuffer().Cap())
	}
	if c.ReadBuffer() == c.WriteBuffer() {
		t.Fatal("expected distinct read/write buffers")
	}
}
