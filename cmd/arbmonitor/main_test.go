package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/defistate/dexarb/arbitrage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	src := make(chan []arbitrage.ArbPath)
	fast := make(chan []arbitrage.ArbPath, 2)
	full := make(chan []arbitrage.ArbPath) // never read

	done := make(chan struct{})
	go func() {
		fanOut(context.Background(), src, []chan []arbitrage.ArbPath{fast, full}, logger)
		close(done)
	}()

	src <- []arbitrage.ArbPath{{ID: "a"}}
	src <- []arbitrage.ArbPath{{ID: "b"}}
	close(src)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fanOut did not return after src closed")
	}

	var got []string
	for set := range fast {
		got = append(got, set[0].ID)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok := <-full
	require.False(t, ok)
}
