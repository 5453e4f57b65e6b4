package teleop

import (
	"errors"
	"sync"
	"time"

	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/pkg/wire"
)

// mockLink records payloads. When deliver is set every dispatch counts as a
// successful send on health.
type mockLink struct {
	mu        sync.Mutex
	health    *LinkHealth
	deliver   bool
	failWith  error
	payloads  [][]byte
	final     [][]byte
	starts    int
	closes    int
	sendAfter bool
}

func newMockLink(health *LinkHealth, deliver bool) *mockLink {
	return &mockLink{health: health, deliver: deliver}
}

func (m *mockLink) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *mockLink) Dispatch(payload []byte) error {
	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return err
	}
	m.payloads = append(m.payloads, payload)
	deliver := m.deliver
	if m.closes > 0 {
		m.sendAfter = true
	}
	m.mu.Unlock()

	if deliver && m.health != nil {
		m.health.MarkSent(time.Now())
	}
	return nil
}

func (m *mockLink) SendFinal(payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes > 0 {
		return errors.New("link closed")
	}
	m.final = append(m.final, payload)
	return nil
}

func (m *mockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockLink) setDeliver(deliver bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliver = deliver
}

func (m *mockLink) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *mockLink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

func (m *mockLink) last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil
	}
	return m.payloads[len(m.payloads)-1]
}

// fixedState is a StateReader with a settable state.
type fixedState struct {
	mu    sync.Mutex
	state safety.State
}

func (f *fixedState) State() safety.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fixedState) set(s safety.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func decode(t interface{ Fatalf(string, ...interface{}) }, payload []byte) wire.MotorCommand {
	cmd, err := wire.FlatBuffersCodec{}.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return cmd
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// lastCommand decodes the most recent payload; ok is false before the first one.
func (m *mockLink) lastCommand() (wire.MotorCommand, bool) {
	p := m.last()
	if p == nil {
		return wire.MotorCommand{}, false
	}
	cmd, err := wire.FlatBuffersCodec{}.Decode(p)
	return cmd, err == nil
}
