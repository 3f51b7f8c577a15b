package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/joshuafuller/beacon/internal/catalog"
	"github.com/joshuafuller/beacon/internal/mcast"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// probe sends 3 ANY queries for profile's instance name, 250ms apart
// (RFC 6762 §8.1), and fails if any answer for that name arrives before
// probing completes — another host already owns it. This runs only
// when WithProbing(true) is set; spec-level advertise/announce
// semantics don't require it.
func (s *Service) probe(ctx context.Context, profile *catalog.ServiceProfile) error {
	name := profile.FullyQualifiedInstance()
	conflict := make(chan struct{}, 1)

	id := s.mc.Subscribe(func(ev mcast.Event) {
		a, ok := ev.(mcast.AnswerReceived)
		if !ok {
			return
		}
		for _, rr := range a.Message.Answers {
			if wire.EqualNames(rr.Name, name) {
				select {
				case conflict <- struct{}{}:
				default:
				}
				return
			}
		}
	})
	defer s.mc.Unsubscribe(id)

	query := wire.NewQuery(0)
	query.AddQuestion(wire.Question{Name: name, Type: protocol.TypeANY, Class: protocol.ClassIN})

	const probeCount = 3
	for i := 0; i < probeCount; i++ {
		if err := s.mc.SendQuery(ctx, query); err != nil {
			return err
		}
		select {
		case <-conflict:
			return fmt.Errorf("discovery: probe conflict, %q is already in use on this network", name)
		case <-time.After(protocol.ProbeInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-conflict:
		return fmt.Errorf("discovery: probe conflict, %q is already in use on this network", name)
	default:
		return nil
	}
}
