// Package mnet implements the multi-interface IPv4/IPv6 UDP multicast
// transport mDNS rides on: one shared receiver socket per address family,
// one sender socket per local unicast address, multicast group membership
// management, and loopback-duplicate filtering for multi-NIC hosts.
package mnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/beacon/internal/errs"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Family distinguishes the IPv4 and IPv6 multicast planes, which run on
// independent sockets and groups.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Datagram is an inbound multicast packet handed to the caller after the
// loopback filter has passed it.
type Datagram struct {
	Bytes      []byte
	Family     Family
	Iface      string
	LocalAddr  net.IP
	RemoteAddr *net.UDPAddr
}

// Config selects which address families to bring up and whether senders
// should loop their own transmissions back to the local receiver.
type Config struct {
	UseIPv4   bool
	UseIPv6   bool
	Loopback  bool
}

// sender is one per-interface-address transmit socket, joined to the
// mDNS group so it can also receive (used for loopback bookkeeping).
type sender struct {
	iface  string
	addr   net.IP
	family Family
	conn   net.PacketConn
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
}

// Transport owns the receiver sockets, the set of per-address senders,
// and the designated loopback source used to de-duplicate multicast
// fan-out on multi-NIC hosts (RFC 6762 §2).
type Transport struct {
	cfg Config

	mu               sync.Mutex
	v4conn           net.PacketConn
	v4p              *ipv4.PacketConn
	v6conn           net.PacketConn
	v6p              *ipv6.PacketConn
	senders          map[string]*sender
	loopbackSource4  net.IP
	loopbackSource6  net.IP

	out     chan Datagram
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New returns a Transport that has not yet bound any sockets; call Start.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:     cfg,
		senders: make(map[string]*sender),
		out:     make(chan Datagram, 64),
		done:    make(chan struct{}),
	}
}

// Start binds the enabled receiver sockets and begins their receive
// loops. It fails with StartupError only if neither requested family
// could be brought up.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	var v4err, v6err error
	if t.cfg.UseIPv4 {
		v4err = t.startReceiver4(ctx)
	}
	if t.cfg.UseIPv6 {
		v6err = t.startReceiver6(ctx)
	}

	if (t.cfg.UseIPv4 && v4err != nil) && (t.cfg.UseIPv6 && v6err != nil) {
		return &errs.StartupError{Err: fmt.Errorf("ipv4: %v, ipv6: %v", v4err, v6err)}
	}
	if !t.cfg.UseIPv4 && !t.cfg.UseIPv6 {
		return &errs.StartupError{Err: fmt.Errorf("no address family enabled")}
	}
	if t.v4conn == nil && t.v6conn == nil {
		return &errs.StartupError{Err: fmt.Errorf("ipv4: %v, ipv6: %v", v4err, v6err)}
	}

	t.started = true
	return nil
}

func listenConfig() net.ListenConfig {
	return net.ListenConfig{Control: platformControl}
}

func (t *Transport) startReceiver4(ctx context.Context) error {
	conn, err := listenConfig().ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(protocol.Port)))
	if err != nil {
		return &errs.NetworkError{Operation: "listen ipv4 receiver", Err: err}
	}
	t.v4conn = conn
	t.v4p = ipv4.NewPacketConn(conn)
	t.wg.Add(1)
	go t.receiveLoop4()
	return nil
}

func (t *Transport) startReceiver6(ctx context.Context) error {
	conn, err := listenConfig().ListenPacket(ctx, "udp6", net.JoinHostPort("::", strconv.Itoa(protocol.Port)))
	if err != nil {
		return &errs.NetworkError{Operation: "listen ipv6 receiver", Err: err}
	}
	t.v6conn = conn
	t.v6p = ipv6.NewPacketConn(conn)
	t.wg.Add(1)
	go t.receiveLoop6()
	return nil
}

// AddInterface joins the mDNS groups on iface and opens a sender socket
// for each of its unicast addresses in an enabled family. The first
// sender address to succeed per family becomes the designated loopback
// source (RFC 6762 §2: the one copy of a looped-back send that should
// survive the duplicate filter).
func (t *Transport) AddInterface(iface net.Interface) error {
	addrs, err := iface.Addrs()
	if err != nil {
		return &errs.NetworkError{Operation: "enumerate interface addresses", Err: err, Details: iface.Name}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.UseIPv4 && t.v4p != nil {
		if err := t.v4p.JoinGroup(&iface, &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4)}); err != nil {
			return &errs.NetworkError{Operation: "join ipv4 group", Err: err, Details: iface.Name}
		}
	}
	if t.cfg.UseIPv6 && t.v6p != nil {
		if err := t.v6p.JoinGroup(&iface, &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6)}); err != nil {
			return &errs.NetworkError{Operation: "join ipv6 group", Err: err, Details: iface.Name}
		}
	}

	for _, a := range addrs {
		ip := addrIP(a)
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			if t.cfg.UseIPv4 {
				if err := t.addSender(iface, ip4, FamilyIPv4); err != nil {
					continue
				}
			}
			continue
		}
		if t.cfg.UseIPv6 {
			_ = t.addSender(iface, ip, FamilyIPv6)
		}
	}
	return nil
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

func senderKey(ifaceName string, ip net.IP) string { return ifaceName + "|" + ip.String() }

func (t *Transport) addSender(iface net.Interface, ip net.IP, family Family) error {
	key := senderKey(iface.Name, ip)
	if _, exists := t.senders[key]; exists {
		return nil
	}

	network := "udp4"
	groupAddr := protocol.MulticastAddrIPv4
	if family == FamilyIPv6 {
		network = "udp6"
		groupAddr = protocol.MulticastAddrIPv6
	}

	local := &net.UDPAddr{IP: ip, Port: protocol.Port}
	conn, err := listenConfig().ListenPacket(context.Background(), network, local.String())
	if err != nil {
		return &errs.NetworkError{Operation: "open sender socket", Err: err, Details: local.String()}
	}

	s := &sender{iface: iface.Name, addr: ip, family: family, conn: conn}

	if family == FamilyIPv4 {
		s.p4 = ipv4.NewPacketConn(conn)
		if err := s.p4.JoinGroup(&iface, &net.UDPAddr{IP: net.ParseIP(groupAddr)}); err != nil {
			_ = conn.Close()
			return &errs.NetworkError{Operation: "join ipv4 group on sender", Err: err}
		}
		_ = s.p4.SetMulticastTTL(255)
		_ = s.p4.SetMulticastLoopback(t.cfg.Loopback)
		if t.loopbackSource4 == nil {
			t.loopbackSource4 = ip
		}
	} else {
		s.p6 = ipv6.NewPacketConn(conn)
		if err := s.p6.JoinGroup(&iface, &net.UDPAddr{IP: net.ParseIP(groupAddr)}); err != nil {
			_ = conn.Close()
			return &errs.NetworkError{Operation: "join ipv6 group on sender", Err: err}
		}
		_ = s.p6.SetHopLimit(255)
		_ = s.p6.SetMulticastLoopback(t.cfg.Loopback)
		if t.loopbackSource6 == nil {
			t.loopbackSource6 = ip
		}
	}

	t.senders[key] = s
	return nil
}

// RemoveInterface leaves the mDNS groups and closes every sender socket
// bound to iface. Leave/close failures are best-effort since the NIC may
// already be gone.
func (t *Transport) RemoveInterface(iface net.Interface) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.v4p != nil {
		_ = t.v4p.LeaveGroup(&iface, &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4)})
	}
	if t.v6p != nil {
		_ = t.v6p.LeaveGroup(&iface, &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6)})
	}

	for key, s := range t.senders {
		if s.iface != iface.Name {
			continue
		}
		_ = s.conn.Close()
		delete(t.senders, key)
		if s.family == FamilyIPv4 && t.loopbackSource4.Equal(s.addr) {
			t.loopbackSource4 = nil
		}
		if s.family == FamilyIPv6 && t.loopbackSource6.Equal(s.addr) {
			t.loopbackSource6 = nil
		}
	}
}

// Send transmits pkt concurrently through every sender socket of family.
// Per-socket write failures are ignored and not reported to the caller;
// the operation as a whole only fails if no sender exists for the family
// at all.
func (t *Transport) Send(_ context.Context, pkt []byte, family Family) error {
	t.mu.Lock()
	targets := make([]*sender, 0, len(t.senders))
	for _, s := range t.senders {
		if s.family == family {
			targets = append(targets, s)
		}
	}
	t.mu.Unlock()

	if len(targets) == 0 {
		return &errs.NetworkError{Operation: "send", Err: fmt.Errorf("no sender sockets for %s", family)}
	}

	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4), Port: protocol.Port}
	if family == FamilyIPv6 {
		group = &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6), Port: protocol.Port}
	}

	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *sender) {
			defer wg.Done()
			_, _ = s.conn.WriteTo(pkt, group)
		}(s)
	}
	wg.Wait()
	return nil
}

// SendTo transmits pkt directly to dst instead of the multicast group,
// used for unicast (QU-bit) replies. It reuses a sender socket of the
// matching family if one exists, falling back to the shared receiver
// socket otherwise.
func (t *Transport) SendTo(pkt []byte, family Family, dst *net.UDPAddr) error {
	t.mu.Lock()
	var conn net.PacketConn
	for _, s := range t.senders {
		if s.family == family {
			conn = s.conn
			break
		}
	}
	if conn == nil {
		if family == FamilyIPv4 {
			conn = t.v4conn
		} else {
			conn = t.v6conn
		}
	}
	t.mu.Unlock()

	if conn == nil {
		return &errs.NetworkError{Operation: "send unicast", Err: fmt.Errorf("no socket available for %s", family)}
	}
	if _, err := conn.WriteTo(pkt, dst); err != nil {
		return &errs.NetworkError{Operation: "send unicast", Err: err, Details: dst.String()}
	}
	return nil
}

// Datagrams returns the channel of inbound packets that passed the
// loopback filter.
func (t *Transport) Datagrams() <-chan Datagram { return t.out }

// Close stops the receive loops and releases every socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	close(t.done)
	v4conn, v6conn := t.v4conn, t.v6conn
	senders := t.senders
	t.senders = make(map[string]*sender)
	t.mu.Unlock()

	if v4conn != nil {
		_ = v4conn.Close()
	}
	if v6conn != nil {
		_ = v6conn.Close()
	}
	for _, s := range senders {
		_ = s.conn.Close()
	}

	t.wg.Wait()
	close(t.out)
	return nil
}

func (t *Transport) receiveLoop4() {
	defer t.wg.Done()
	t.receiveLoop(t.v4conn, FamilyIPv4)
}

func (t *Transport) receiveLoop6() {
	defer t.wg.Done()
	t.receiveLoop(t.v6conn, FamilyIPv6)
}

func (t *Transport) receiveLoop(conn net.PacketConn, family Family) {
	for {
		select {
		case <-t.done:
			return
		default:
		}

		bufPtr := getBuffer()
		buf := *bufPtr
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			putBuffer(bufPtr)
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}

		udpAddr, _ := addr.(*net.UDPAddr)
		if t.isLoopbackDuplicate(udpAddr, family) {
			putBuffer(bufPtr)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		putBuffer(bufPtr)

		select {
		case t.out <- Datagram{Bytes: data, Family: family, LocalAddr: localAddrIP(conn), RemoteAddr: udpAddr}:
		case <-t.done:
			return
		}
	}
}

// isLoopbackDuplicate reports whether a received datagram originated
// from one of our own sender sockets and is not the one designated
// loopback source — i.e. it is a redundant copy from multicast fan-out
// on a multi-NIC host and should be dropped (RFC 6762 §2).
func (t *Transport) isLoopbackDuplicate(remote *net.UDPAddr, family Family) bool {
	if remote == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	loopbackSrc := t.loopbackSource4
	if family == FamilyIPv6 {
		loopbackSrc = t.loopbackSource6
	}

	for _, s := range t.senders {
		if s.family != family {
			continue
		}
		if s.addr.Equal(remote.IP) {
			return loopbackSrc == nil || !loopbackSrc.Equal(remote.IP)
		}
	}
	return false
}

func localAddrIP(conn net.PacketConn) net.IP {
	if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return udp.IP
	}
	return nil
}
