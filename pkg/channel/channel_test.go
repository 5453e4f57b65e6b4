package channel

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/open-teleop/rover/pkg/log"
)

func startReceiver(t *testing.T) (*Receiver, <-chan []byte) {
	t.Helper()
	recv, err := Listen("127.0.0.1:0", 1024, log.NewNopLogger())
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = recv.Serve(ctx, func(payload []byte, _ *net.UDPAddr, _ time.Time) {
			got <- payload
		})
	}()

	t.Cleanup(func() {
		cancel()
		recv.Close()
		<-done
	})
	return recv, got
}

func waitPayload(t *testing.T, got <-chan []byte) []byte {
	t.Helper()
	select {
	case p := <-got:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for datagram")
		return nil
	}
}

func TestSenderDeliversAndReportsSuccess(t *testing.T) {
	recv, got := startReceiver(t)

	var sentCount atomic.Int32
	sender, err := NewSender(recv.LocalAddr().String(), log.NewNopLogger(),
		WithOnSent(func(time.Time) { sentCount.Add(1) }),
		WithWriteTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()
	sender.Start()

	if err := sender.Dispatch([]byte("hello")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if p := waitPayload(t, got); string(p) != "hello" {
		t.Errorf("Expected 'hello', got %q", p)
	}

	deadline := time.Now().Add(time.Second)
	for sentCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sentCount.Load() != 1 {
		t.Errorf("Expected one onSent callback, got %d", sentCount.Load())
	}
	if m := sender.Metrics(); m.Sent != 1 || m.Failed != 0 {
		t.Errorf("Unexpected metrics: %+v", m)
	}
}

func TestDispatchLatestWins(t *testing.T) {
	recv, got := startReceiver(t)

	sender, err := NewSender(recv.LocalAddr().String(), log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()

	// Worker not started yet, so each dispatch displaces the previous one.
	for _, p := range []string{"a", "b", "c"} {
		if err := sender.Dispatch([]byte(p)); err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", p, err)
		}
	}
	if m := sender.Metrics(); m.Dropped != 2 {
		t.Errorf("Expected 2 dropped payloads, got %d", m.Dropped)
	}

	sender.Start()
	if p := waitPayload(t, got); string(p) != "c" {
		t.Errorf("Expected latest payload 'c', got %q", p)
	}

	select {
	case p := <-got:
		t.Errorf("Unexpected extra datagram %q", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchNeverBlocks(t *testing.T) {
	sender, err := NewSender("127.0.0.1:9", log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		_ = sender.Dispatch([]byte{byte(i)})
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Dispatch took %v for 1000 payloads", elapsed)
	}
}

func TestSendFinalSynchronous(t *testing.T) {
	recv, got := startReceiver(t)

	var mu sync.Mutex
	var lastSent time.Time
	sender, err := NewSender(recv.LocalAddr().String(), log.NewNopLogger(),
		WithOnSent(func(at time.Time) {
			mu.Lock()
			lastSent = at
			mu.Unlock()
		}))
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()

	if err := sender.SendFinal([]byte("stop"), 200*time.Millisecond); err != nil {
		t.Fatalf("SendFinal failed: %v", err)
	}
	mu.Lock()
	if lastSent.IsZero() {
		t.Errorf("Expected onSent before SendFinal returned")
	}
	mu.Unlock()
	if p := waitPayload(t, got); string(p) != "stop" {
		t.Errorf("Expected 'stop', got %q", p)
	}
}

func TestSendFinalDiscardsPending(t *testing.T) {
	recv, got := startReceiver(t)

	sender, err := NewSender(recv.LocalAddr().String(), log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()

	if err := sender.Dispatch([]byte("drive")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if err := sender.SendFinal([]byte("stop"), 200*time.Millisecond); err != nil {
		t.Fatalf("SendFinal failed: %v", err)
	}
	sender.Start()

	if p := waitPayload(t, got); string(p) != "stop" {
		t.Fatalf("Expected 'stop', got %q", p)
	}
	select {
	case p := <-got:
		t.Errorf("Unexpected datagram after the final stop: %q", p)
	case <-time.After(100 * time.Millisecond):
	}
	if err := sender.Dispatch([]byte("drive")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Dispatch after SendFinal, got %v", err)
	}
	if m := sender.Metrics(); m.Dropped != 1 {
		t.Errorf("Expected the pending payload counted as dropped, got %+v", m)
	}
}

func TestSendFinalIsLastOnTheWire(t *testing.T) {
	recv, got := startReceiver(t)

	sender, err := NewSender(recv.LocalAddr().String(), log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Close()
	sender.Start()

	for i := 0; i < 50; i++ {
		_ = sender.Dispatch([]byte("drive"))
	}
	if err := sender.SendFinal([]byte("stop"), 200*time.Millisecond); err != nil {
		t.Fatalf("SendFinal failed: %v", err)
	}

	var last []byte
	for {
		select {
		case p := <-got:
			last = p
			continue
		case <-time.After(150 * time.Millisecond):
		}
		break
	}
	if string(last) != "stop" {
		t.Errorf("Expected the last datagram to be 'stop', got %q", last)
	}
}

func TestSenderClose(t *testing.T) {
	sender, err := NewSender("127.0.0.1:9", log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	sender.Start()

	if err := sender.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := sender.Dispatch([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Dispatch, got %v", err)
	}
	if err := sender.SendFinal([]byte("x"), time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from SendFinal, got %v", err)
	}
}

func TestCannotOperate(t *testing.T) {
	if _, err := NewSender("no-port-here", log.NewNopLogger()); !errors.Is(err, ErrCannotOperate) {
		t.Errorf("Expected ErrCannotOperate from NewSender, got %v", err)
	}

	first, err := Listen("127.0.0.1:0", 0, log.NewNopLogger())
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer first.Close()

	if _, err := Listen(first.LocalAddr().String(), 0, log.NewNopLogger()); !errors.Is(err, ErrCannotOperate) {
		t.Errorf("Expected ErrCannotOperate for a port in use, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	recv, err := Listen("127.0.0.1:0", 0, log.NewNopLogger())
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- recv.Serve(ctx, func([]byte, *net.UDPAddr, time.Time) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
