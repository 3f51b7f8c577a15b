// Package discovery implements DNS-SD (RFC 6763) on top of the
// multicast message layer: advertising service profiles, browsing for
// services and instances, and the query/answer handlers that turn raw
// mDNS traffic into service-discovery events.
package discovery

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/joshuafuller/beacon/internal/catalog"
	"github.com/joshuafuller/beacon/internal/mcast"
	"github.com/joshuafuller/beacon/internal/nameserver"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// enumerationName is the well-known DNS-SD service-enumeration record
// name (RFC 6763 §9).
const enumerationName = "_services._dns-sd._udp.local"

// Service owns a catalog of advertised profiles and a multicast
// message-layer Service, translating between DNS-SD semantics and raw
// mDNS query/answer traffic.
type Service struct {
	cfg config

	mc      *mcast.Service
	catalog *catalog.Catalog
	ns      *nameserver.NameServer
	events  *subscribers

	mu       sync.Mutex
	profiles map[string]*catalog.ServiceProfile // keyed by FullyQualifiedInstance
	eventSub mcast.SubscriptionID
}

// New returns a Service with an empty catalog and no advertised
// profiles; call Start to bring up the underlying transport.
func New(opts ...Option) *Service {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cat := catalog.New()
	return &Service{
		cfg:      cfg,
		mc:       mcast.New(cfg.mcastOpts...),
		catalog:  cat,
		ns:       nameserver.New(cat),
		events:   newSubscribers(),
		profiles: make(map[string]*catalog.ServiceProfile),
	}
}

// Subscribe registers h for every ServiceDiscovered / ServiceInstance*
// event this Service raises.
func (s *Service) Subscribe(h Handler) SubscriptionID { return s.events.Subscribe(h) }

// Unsubscribe removes a previously registered handler.
func (s *Service) Unsubscribe(id SubscriptionID) { s.events.Unsubscribe(id) }

// Start brings up the multicast transport and binds the query/answer
// handlers.
func (s *Service) Start(ctx context.Context) error {
	if err := s.mc.Start(ctx); err != nil {
		return err
	}
	s.eventSub = s.mc.Subscribe(s.onMcastEvent)
	return nil
}

// Stop releases every resource Start acquired.
func (s *Service) Stop() error {
	s.mc.Unsubscribe(s.eventSub)
	return s.mc.Stop()
}

func (s *Service) onMcastEvent(ev mcast.Event) {
	switch e := ev.(type) {
	case mcast.QueryReceived:
		// Run asynchronously: a slow resolution must not delay the
		// next inbound query's dispatch.
		go s.answerQuery(e)
	case mcast.AnswerReceived:
		go s.scanAnswer(e)
	}
}

// Advertise inserts a profile's enumeration, instance, subtype, and
// resource records into the catalog, including synthesized reverse
// lookup PTRs. If probing is enabled, it runs a conflict probe first
// and returns an error if the name is already in use.
func (s *Service) Advertise(ctx context.Context, profile *catalog.ServiceProfile) error {
	if s.cfg.probeBeforeAdvertise {
		if err := s.probe(ctx, profile); err != nil {
			return err
		}
	}

	s.catalog.Add(wire.RR{
		Name:  enumerationName,
		Type:  protocol.TypePTR,
		Class: protocol.ClassIN,
		TTL:   protocol.TTLShared,
		Data:  wire.PTR{Target: profile.QualifiedService()},
	}, true)

	s.catalog.Add(wire.RR{
		Name:  profile.QualifiedService(),
		Type:  protocol.TypePTR,
		Class: protocol.ClassIN,
		TTL:   protocol.TTLShared,
		Data:  wire.PTR{Target: profile.FullyQualifiedInstance()},
	}, true)

	for _, sub := range profile.Subtypes {
		s.catalog.Add(wire.RR{
			Name:  profile.SubtypePTRName(sub),
			Type:  protocol.TypePTR,
			Class: protocol.ClassIN,
			TTL:   protocol.TTLShared,
			Data:  wire.PTR{Target: profile.FullyQualifiedInstance()},
		}, true)
	}

	for _, rr := range profile.Resources() {
		s.catalog.Add(rr, true)
	}

	s.catalog.IncludeReverseLookupRecords()

	s.mu.Lock()
	s.profiles[profile.FullyQualifiedInstance()] = profile
	s.mu.Unlock()

	return nil
}

// Unadvertise sends a goodbye answer (instance PTR and resources with
// TTL=0) and removes the profile's node from the catalog.
func (s *Service) Unadvertise(ctx context.Context, profile *catalog.ServiceProfile) error {
	goodbye := wire.NewResponse()
	goodbye.AddAnswer(wire.RR{
		Name:  profile.QualifiedService(),
		Type:  protocol.TypePTR,
		Class: protocol.ClassIN,
		TTL:   0,
		Data:  wire.PTR{Target: profile.FullyQualifiedInstance()},
	})
	for _, rr := range profile.Resources() {
		rr.TTL = 0
		goodbye.AddAnswer(rr)
	}

	err := s.mc.SendAnswer(ctx, goodbye, false)

	s.catalog.Remove(profile.FullyQualifiedInstance())
	s.catalog.Remove(profile.EffectiveHostName())
	s.mu.Lock()
	delete(s.profiles, profile.FullyQualifiedInstance())
	s.mu.Unlock()

	return err
}

// Announce sends an unsolicited response containing the instance PTR
// and resources twice, 1 second apart, with duplicate suppression
// disabled (RFC 6762 §8.3).
func (s *Service) Announce(ctx context.Context, profile *catalog.ServiceProfile) error {
	build := func() *wire.Message {
		msg := wire.NewResponse()
		msg.AddAnswer(wire.RR{
			Name:  profile.QualifiedService(),
			Type:  protocol.TypePTR,
			Class: protocol.ClassIN,
			TTL:   protocol.TTLShared,
			Data:  wire.PTR{Target: profile.FullyQualifiedInstance()},
		})
		for _, rr := range profile.Resources() {
			msg.AddAnswer(rr)
		}
		return msg
	}

	if err := s.mc.SendAnswer(ctx, build(), false); err != nil {
		return err
	}
	if err := mcast.Wait(ctx, protocol.AnnounceInterval); err != nil {
		return err
	}
	return s.mc.SendAnswer(ctx, build(), false)
}

// QueryAllServices sends a multicast PTR query for the DNS-SD
// enumeration name.
func (s *Service) QueryAllServices(ctx context.Context) error {
	return s.mc.SendQuery(ctx, ptrQuery(enumerationName))
}

// QueryAllServicesUnicast is QueryAllServices with the QU bit set.
func (s *Service) QueryAllServicesUnicast(ctx context.Context) error {
	return s.mc.SendUnicastQuery(ctx, ptrQuery(enumerationName))
}

// QueryServiceInstances sends a multicast PTR query for "service.local",
// or "subtype._sub.service.local" if subtype is non-empty.
func (s *Service) QueryServiceInstances(ctx context.Context, service string, subtype string) error {
	return s.mc.SendQuery(ctx, ptrQuery(serviceQueryName(service, subtype)))
}

// QueryServiceInstancesUnicast is QueryServiceInstances with the QU bit
// set.
func (s *Service) QueryServiceInstancesUnicast(ctx context.Context, service string, subtype string) error {
	return s.mc.SendUnicastQuery(ctx, ptrQuery(serviceQueryName(service, subtype)))
}

func serviceQueryName(service, subtype string) string {
	if subtype == "" {
		return service + ".local"
	}
	return subtype + "._sub." + service + ".local"
}

func ptrQuery(name string) *wire.Message {
	msg := wire.NewQuery(0)
	msg.AddQuestion(wire.Question{Name: name, Type: protocol.TypePTR, Class: protocol.ClassIN})
	return msg
}

// answerQuery resolves an inbound query against the catalog and
// replies, honoring QU, the reachability filter, and additional-record
// policy.
func (s *Service) answerQuery(q mcast.QueryReceived) {
	if len(q.Message.Questions) == 0 {
		return
	}

	wantsUnicast := false
	normalized := make([]wire.Question, len(q.Message.Questions))
	for i, question := range q.Message.Questions {
		if question.WantsUnicastResponse() {
			wantsUnicast = true
		}
		question.Class = question.EffectiveClass()
		normalized[i] = question
	}

	resp := s.ns.Resolve(normalized, s.cfg.answersContainAdditionalRecords)
	if len(resp.Answers) == 0 {
		return
	}

	for _, a := range resp.Answers {
		if strings.EqualFold(a.Name, enumerationName) {
			resp.Additionals = nil
			break
		}
	}

	if s.cfg.flattenAdditionals {
		resp.Answers = append(resp.Answers, resp.Additionals...)
		resp.Additionals = nil
	}

	if s.cfg.filterUnreachable {
		resp.Answers = s.filterReachable(resp.Answers, q)
		resp.Additionals = s.filterReachable(resp.Additionals, q)
		if len(resp.Answers) == 0 {
			return
		}
	}

	if wantsUnicast && q.RemoteAddr != nil {
		_ = s.mc.SendAnswerTo(resp, q.RemoteAddr)
		return
	}
	_ = s.mc.SendAnswer(context.Background(), resp, true)
}

func (s *Service) filterReachable(rrs []wire.RR, q mcast.QueryReceived) []wire.RR {
	if q.RemoteAddr == nil {
		return rrs
	}
	out := rrs[:0:0]
	for _, rr := range rrs {
		addr := addressOf(rr)
		if addr == nil || reachableFrom(addr, q.LocalAddr, q.RemoteAddr.IP, q.RemoteAddr.Zone) {
			out = append(out, rr)
		}
	}
	return out
}

func addressOf(rr wire.RR) net.IP {
	switch d := rr.Data.(type) {
	case wire.A:
		return d.Address
	case wire.AAAA:
		return d.Address
	default:
		return nil
	}
}

// scanAnswer inspects an inbound answer message for PTR records under
// ".local" and raises the matching service-discovery event.
func (s *Service) scanAnswer(a mcast.AnswerReceived) {
	for _, rr := range a.Message.Answers {
		if rr.Type != protocol.TypePTR {
			continue
		}
		ptr, ok := rr.Data.(wire.PTR)
		if !ok {
			continue
		}

		switch {
		case strings.EqualFold(rr.Name, enumerationName):
			s.events.Dispatch(ServiceDiscovered{ServiceType: ptr.Target, Message: a.Message})
		case rr.TTL == 0:
			s.events.Dispatch(ServiceInstanceShutdown{InstanceName: ptr.Target, Message: a.Message})
		default:
			s.events.Dispatch(ServiceInstanceDiscovered{InstanceName: ptr.Target, Message: a.Message})
		}
	}
}
