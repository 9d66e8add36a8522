package txgen

import (
	"context"
	"testing"
	"time"

	"github.com/tolelom/hybridchain/pool"
)

func TestGeneratorEmitAddsToMempool(t *testing.T) {
	mp := pool.NewMempool()
	g, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.emit()
	if mp.Size() != 1 {
		t.Fatalf("Size = %d, want 1", mp.Size())
	}
	g.emit()
	if mp.Size() != 2 {
		t.Fatalf("Size = %d, want 2 after second emit", mp.Size())
	}
}

func TestGeneratorRunRespectsShutDown(t *testing.T) {
	mp := pool.NewMempool()
	g, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	g.SendControl(Control{State: StateRun, ThetaUs: 1000})
	time.Sleep(20 * time.Millisecond)
	g.SendControl(Control{State: StateShutDown})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ShutDown")
	}
	if mp.Size() == 0 {
		t.Fatal("expected at least one transaction to have been emitted while running")
	}
}
