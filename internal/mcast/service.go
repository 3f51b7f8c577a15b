// Package mcast implements the multicast message layer: it owns the
// transport and NIC monitor, encodes/decodes every datagram, applies
// duplicate suppression and the size-truncation policy, and fans inbound
// messages out to subscribers as QueryReceived/AnswerReceived events.
package mcast

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/catalog"
	"github.com/joshuafuller/beacon/internal/errs"
	"github.com/joshuafuller/beacon/internal/mnet"
	"github.com/joshuafuller/beacon/internal/netwatch"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/ratelimit"
	"github.com/joshuafuller/beacon/internal/wire"
)

// Service owns one multicast transport, one NIC monitor, and the event
// subscribers that consume what they receive. It never returns parse
// errors to a caller; malformed datagrams are dropped and surfaced as a
// MalformedMessage event instead (RFC 6762 places no obligation on
// responders to validate peer input beyond ignoring what they can't
// parse).
type Service struct {
	cfg config

	transport *mnet.Transport
	monitor   *netwatch.Monitor
	recent    *catalog.RecentMessages
	limiter   *ratelimit.Limiter

	events *subscribers

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Service configured by opts; call Start to bind sockets
// and begin dispatch.
func New(opts ...Option) *Service {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	svc := &Service{
		cfg: cfg,
		transport: mnet.New(mnet.Config{
			UseIPv4:  cfg.useIPv4,
			UseIPv6:  cfg.useIPv6,
			Loopback: cfg.multicastLoopback,
		}),
		monitor: netwatch.New(cfg.discoveryInterval),
		recent:  catalog.NewRecentMessages(protocol.DedupWindow),
		events:  newSubscribers(),
	}
	if cfg.rateLimitThreshold > 0 {
		svc.limiter = ratelimit.New(cfg.rateLimitThreshold, cfg.rateLimitCooldown, cfg.rateLimitMaxTracked)
	}
	return svc
}

// Subscribe registers h for every event the service raises. The
// returned ID can be passed to Unsubscribe.
func (s *Service) Subscribe(h Handler) SubscriptionID { return s.events.Subscribe(h) }

// Unsubscribe removes a previously registered handler.
func (s *Service) Unsubscribe(id SubscriptionID) { s.events.Unsubscribe(id) }

// Start binds the transport's sockets, begins NIC monitoring, and
// starts the dispatch loop. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.transport.Start(runCtx); err != nil {
		cancel()
		return err
	}

	s.monitor.Start(runCtx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.watchInterfaces()

	return nil
}

// Stop halts dispatch, the NIC monitor, and releases every socket.
// Calling Stop before Start, or twice, is a no-op.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.monitor.Stop()
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

func (s *Service) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// watchInterfaces feeds every NIC diff to the transport so its sender
// sockets and group memberships track the live interface set, and
// republishes the diff as NetworkInterfaceDiscovered.
func (s *Service) watchInterfaces() {
	defer s.wg.Done()
	for diff := range s.monitor.Diffs() {
		for _, iface := range diff.Added {
			_ = s.transport.AddInterface(iface)
		}
		for _, iface := range diff.Removed {
			s.transport.RemoveInterface(iface)
		}
		s.events.Dispatch(NetworkInterfaceDiscovered{Added: diff.Added, Removed: diff.Removed})
	}
}

// dispatchLoop parses every inbound datagram and routes it to
// QueryReceived or AnswerReceived based on the QR bit, or to
// MalformedMessage if it fails to parse. Messages with a non-zero OPCODE
// or RCODE are dropped silently.
func (s *Service) dispatchLoop() {
	defer s.wg.Done()
	for dg := range s.transport.Datagrams() {
		msg, err := wire.Unmarshal(dg.Bytes)
		if err != nil {
			s.events.Dispatch(MalformedMessage{Bytes: dg.Bytes, Err: err})
			continue
		}

		opcode := (msg.Header.Flags >> 11) & 0x0F
		rcode := msg.Header.Flags & 0x0F
		if opcode != protocol.OpcodeQuery || rcode != protocol.RCodeNoError {
			continue
		}

		if msg.Header.IsResponse() {
			if len(msg.Answers) == 0 {
				continue
			}
			s.events.Dispatch(AnswerReceived{Message: msg, LocalAddr: dg.LocalAddr, RemoteAddr: dg.RemoteAddr})
			continue
		}

		if len(msg.Questions) == 0 {
			continue
		}
		if s.limiter != nil && dg.RemoteAddr != nil && !s.limiter.Allow(dg.RemoteAddr.IP.String()) {
			continue
		}
		s.events.Dispatch(QueryReceived{Message: msg, LocalAddr: dg.LocalAddr, RemoteAddr: dg.RemoteAddr})
	}
}

// SendQuery transmits msg, forcing it into query shape (QR=0) on both
// enabled address families.
func (s *Service) SendQuery(ctx context.Context, msg *wire.Message) error {
	if !s.isStarted() {
		return &errs.NotStartedError{}
	}
	msg.Header.Flags &^= protocol.FlagQR

	return s.send(ctx, msg)
}

// SendUnicastQuery is SendQuery with the QU bit set on every question,
// asking responders to reply via unicast instead of the multicast
// group.
func (s *Service) SendUnicastQuery(ctx context.Context, msg *wire.Message) error {
	if !s.isStarted() {
		return &errs.NotStartedError{}
	}
	msg.Header.Flags &^= protocol.FlagQR
	for i := range msg.Questions {
		msg.Questions[i].Class |= protocol.ClassCacheFlushBit
	}
	return s.send(ctx, msg)
}

// SendAnswer transmits msg as a response (QR=1, AA=1, ID=0, no
// questions), truncating to the active packet-size policy and, if
// checkDuplicate is set, suppressing the send when an identical answer
// went out within the dedup window.
func (s *Service) SendAnswer(ctx context.Context, msg *wire.Message, checkDuplicate bool) error {
	if !s.isStarted() {
		return &errs.NotStartedError{}
	}

	msg.Header.ID = 0
	msg.Header.Flags |= protocol.FlagQR | protocol.FlagAA
	msg.Questions = nil
	msg.Header.QDCount = 0

	encoded, truncated, err := wire.Truncate(msg, protocol.MaxPacket)
	if err != nil {
		return &errs.PacketTooLargeError{Size: len(encoded), Max: protocol.MaxPacket}
	}
	_ = truncated

	if checkDuplicate && s.cfg.ignoreDuplicateMessages && s.recent.TryAdd(encoded) {
		return nil
	}

	return s.sendBytes(ctx, encoded)
}

// SendAnswerTo transmits msg as a unicast response directly to dst,
// used to honor the QU bit on a received question (RFC 6762 §5.4).
// Truncation applies; duplicate suppression does not, since unicast
// replies are never fanned out across sender sockets.
func (s *Service) SendAnswerTo(msg *wire.Message, dst *net.UDPAddr) error {
	if !s.isStarted() {
		return &errs.NotStartedError{}
	}

	msg.Header.ID = 0
	msg.Header.Flags |= protocol.FlagQR | protocol.FlagAA
	msg.Questions = nil
	msg.Header.QDCount = 0

	encoded, _, err := wire.Truncate(msg, protocol.MaxPacket)
	if err != nil {
		return &errs.PacketTooLargeError{Size: len(encoded), Max: protocol.MaxPacket}
	}

	family := mnet.FamilyIPv4
	if dst.IP.To4() == nil {
		family = mnet.FamilyIPv6
	}
	return s.transport.SendTo(encoded, family, dst)
}

// send marshals a query and enforces the packet-size ceiling exactly,
// never truncating: a query that doesn't fit is a caller error, not
// something to silently shrink (truncation is send_answer's policy,
// where dropping records is a valid way to fit a response).
func (s *Service) send(ctx context.Context, msg *wire.Message) error {
	encoded, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	if len(encoded) > protocol.MaxPacket {
		return &errs.PacketTooLargeError{Size: len(encoded), Max: protocol.MaxPacket}
	}
	return s.sendBytes(ctx, encoded)
}

func (s *Service) sendBytes(ctx context.Context, encoded []byte) error {
	var v4err, v6err error
	if s.cfg.useIPv4 {
		v4err = s.transport.Send(ctx, encoded, mnet.FamilyIPv4)
	}
	if s.cfg.useIPv6 {
		v6err = s.transport.Send(ctx, encoded, mnet.FamilyIPv6)
	}
	if v4err != nil && v6err != nil {
		return v4err
	}
	return nil
}

// ResolveAsync sends query and resolves with the first AnswerReceived
// message whose questions are satisfied by at least one matching
// answer, or with ctx's error if it is cancelled first. The subscription
// is removed on every exit path.
func (s *Service) ResolveAsync(ctx context.Context, query *wire.Message) (*wire.Message, error) {
	if !s.isStarted() {
		return nil, &errs.NotStartedError{}
	}

	result := make(chan *wire.Message, 1)
	id := s.Subscribe(func(ev Event) {
		ans, ok := ev.(AnswerReceived)
		if !ok {
			return
		}
		if !answersQuery(query, ans.Message) {
			return
		}
		select {
		case result <- ans.Message:
		default:
		}
	})
	defer s.Unsubscribe(id)

	if err := s.SendQuery(ctx, query); err != nil {
		return nil, err
	}

	select {
	case msg := <-result:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// answersQuery reports whether resp contains at least one answer whose
// name and type satisfy one of query's questions.
func answersQuery(query, resp *wire.Message) bool {
	for _, q := range query.Questions {
		for _, a := range resp.Answers {
			if !wire.EqualNames(q.Name, a.Name) {
				continue
			}
			if q.Type == protocol.TypeANY || q.Type == a.Type {
				return true
			}
		}
	}
	return false
}

// Wait blocks until d elapses or ctx is cancelled, whichever comes
// first. The discovery layer uses it to space the two announcement
// sends RFC 6762 §8.3 requires.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
