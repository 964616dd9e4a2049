package actuator

import (
	"context"
	"sync"
)

// MemoryPort is an in-memory Port for tests and for running the controller
// without a relay board attached. Tests can inject per-output failures and
// inspect write counts.
type MemoryPort struct {
	mu     sync.Mutex
	state  map[ID]bool
	writes map[ID]int
	resets int

	// failures maps an output to the number of upcoming writes that
	// should fail for it.
	failures map[ID]int
}

var (
	_ Port     = (*MemoryPort)(nil)
	_ Resetter = (*MemoryPort)(nil)
	_ Reader   = (*MemoryPort)(nil)
)

// NewMemoryPort returns a port with every output off.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{
		state:    make(map[ID]bool),
		writes:   make(map[ID]int),
		failures: make(map[ID]int),
	}
}

// Write switches the output, honoring injected failures.
func (p *MemoryPort) Write(ctx context.Context, id ID, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.writes[id]++

	if p.failures[id] > 0 {
		p.failures[id]--
		return ErrWrite
	}

	p.state[id] = on

	return nil
}

// Read reports the current state of the output.
func (p *MemoryPort) Read(ctx context.Context, id ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state[id], nil
}

// ResetBus records a bus reset.
func (p *MemoryPort) ResetBus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.resets++

	return nil
}

// FailWrites makes the next n writes to id fail.
func (p *MemoryPort) FailWrites(id ID, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[id] = n
}

// State reports the current state of the output.
func (p *MemoryPort) State(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state[id]
}

// Writes reports how many writes the output has received.
func (p *MemoryPort) Writes(id ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writes[id]
}

// Resets reports how many bus resets have happened.
func (p *MemoryPort) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resets
}
