package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDefaultSequenceWheels(t *testing.T) {
	want := []struct {
		left, right int
	}{
		{50, 50}, {0, 0},
		{-50, -50}, {0, 0},
		{-50, 50}, {0, 0},
		{50, -50}, {0, 0},
		{80, 20}, {0, 0},
		{20, 80}, {0, 0},
	}

	steps := DefaultSequence()
	if len(steps) != len(want) {
		t.Fatalf("Expected %d steps, got %d", len(want), len(steps))
	}
	for i, step := range steps {
		cmd := step.Command(time.Time{})
		if cmd.Left != want[i].left || cmd.Right != want[i].right {
			t.Errorf("Step %d (%s): got %d/%d, want %d/%d", i+1, step.Name, cmd.Left, cmd.Right, want[i].left, want[i].right)
		}
	}
	if last := steps[len(steps)-1]; last.Speed != 0 || last.Direction != 0 {
		t.Errorf("Sequence must end with a stop, got %+v", last)
	}
}

type countingDriver struct {
	mu    sync.Mutex
	sends int
}

func (c *countingDriver) Send(Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	return nil
}

func (c *countingDriver) Close() error { return nil }

func TestRunStepResends(t *testing.T) {
	d := &countingDriver{}
	step := Step{Name: "Forward", Speed: 50, Duration: 120 * time.Millisecond}

	if err := runStep(context.Background(), d, step, 20*time.Millisecond); err != nil {
		t.Fatalf("runStep failed: %v", err)
	}
	if d.sends < 3 {
		t.Errorf("Expected the command to be resent within the step, got %d sends", d.sends)
	}
}

func TestRunStepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runStep(ctx, &countingDriver{}, Step{Duration: time.Second}, 10*time.Millisecond)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
