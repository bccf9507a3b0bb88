package client

import (
	"context"
	"errors"
	"testing"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

func TestConnectWithinReturnsResult(t *testing.T) {
	t.Parallel()
	want := errors.New("refused")
	_, err := connectWithin(context.Background(), func() (*lksdk.Room, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestConnectWithinHonorsDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	dialed := make(chan struct{})
	start := time.Now()
	_, err := connectWithin(ctx, func() (*lksdk.Room, error) {
		defer close(dialed)
		<-release // a hanging connect
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("deadline not enforced")
	}

	// the abandoned dial still completes without being waited on
	close(release)
	select {
	case <-dialed:
	case <-time.After(time.Second):
		t.Fatal("abandoned dial never finished")
	}
}
