package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ShutsDownOnCancel(t *testing.T) {
	opts, _, _ := testOptions()
	opts.Addr = "127.0.0.1:0"
	srv := NewSequenceServer(&stubSequence{}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	opts, _, _ := testOptions()
	opts.Addr = "127.0.0.1:-1"
	srv := NewSequenceServer(&stubSequence{}, opts)

	err := srv.Run(context.Background(), time.Second)
	require.Error(t, err)
}
