// Package netwatch polls the OS network-interface list and reports which
// multicast-capable interfaces have come up or gone away since the last
// poll, driving the transport's group-membership bookkeeping.
package netwatch

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/protocol"
)

// Diff is the set of interfaces that appeared or disappeared since the
// previous poll. On the monitor's first poll, every usable interface is
// reported as Added.
type Diff struct {
	Added   []net.Interface
	Removed []net.Interface
}

// usable reports whether iface is a candidate for mDNS multicast: up,
// multicast-capable, and not loopback.
func usable(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagMulticast == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	return true
}

// listFunc is overridable in tests; defaults to net.Interfaces.
type listFunc func() ([]net.Interface, error)

// Monitor periodically polls the OS interface list and emits a Diff
// against the previous snapshot through Diffs().
type Monitor struct {
	interval time.Duration
	list     listFunc

	mu       sync.Mutex
	snapshot map[string]net.Interface

	out  chan Diff
	done chan struct{}
	wg   sync.WaitGroup
}

// New returns a Monitor that polls at interval (zero means
// protocol.DiscoveryInterval).
func New(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = protocol.DiscoveryInterval
	}
	return &Monitor{
		interval: interval,
		list:     net.Interfaces,
		snapshot: make(map[string]net.Interface),
		out:      make(chan Diff, 1),
		done:     make(chan struct{}),
	}
}

// Diffs returns the channel of interface-set changes. The first poll's
// result (every usable interface reported as Added) arrives shortly
// after Start.
func (m *Monitor) Diffs() <-chan Diff { return m.out }

// Start begins polling in a background goroutine until ctx is done or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop halts polling and waits for the background goroutine to exit.
func (m *Monitor) Stop() {
	close(m.done)
	m.wg.Wait()
	close(m.out)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.poll()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	ifaces, err := m.list()
	if err != nil {
		return
	}

	current := make(map[string]net.Interface, len(ifaces))
	for _, iface := range ifaces {
		if usable(iface) {
			current[iface.Name] = iface
		}
	}

	m.mu.Lock()
	var diff Diff
	for name, iface := range current {
		if _, existed := m.snapshot[name]; !existed {
			diff.Added = append(diff.Added, iface)
		}
	}
	for name, iface := range m.snapshot {
		if _, still := current[name]; !still {
			diff.Removed = append(diff.Removed, iface)
		}
	}
	m.snapshot = current
	m.mu.Unlock()

	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		return
	}

	select {
	case m.out <- diff:
	case <-m.done:
	}
}
