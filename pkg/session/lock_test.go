package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/fable/pkg/domain"
)

func TestManager_LockLifecycle(t *testing.T) {
	story, err := domain.NewStory("start", domain.Node{ID: "start"})
	if err != nil {
		t.Fatal(err)
	}
	mgr := NewManager(story)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		sid := fmt.Sprintf("session-%d", i)
		if _, err := mgr.LoadOrStart(ctx, sid); err != nil {
			t.Fatal(err)
		}
		if err := mgr.Delete(ctx, sid); err != nil {
			t.Fatal(err)
		}
	}

	if n := len(mgr.locks); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
	if n := mgr.Active(); n != 0 {
		t.Errorf("expected no active sessions, got %d", n)
	}
}
