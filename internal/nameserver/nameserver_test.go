package nameserver

import (
	"net"
	"testing"

	"github.com/joshuafuller/beacon/internal/catalog"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

func TestResolve_TypedQuestion(t *testing.T) {
	cat := catalog.New()
	cat.Add(wire.RR{Name: "host.local", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 120, Data: wire.A{Address: net.IPv4(10, 0, 0, 5)}}, true)

	ns := New(cat)
	resp := ns.Resolve([]wire.Question{{Name: "host.local", Type: protocol.TypeA, Class: protocol.ClassIN}}, false)

	if len(resp.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(resp.Answers))
	}
	if !resp.Header.Authoritative() || !resp.Header.IsResponse() {
		t.Errorf("response should have AA=1 and QR=1")
	}
}

func TestResolve_ANYReturnsEveryRRset(t *testing.T) {
	cat := catalog.New()
	cat.Add(wire.RR{Name: "host.local", Type: protocol.TypeA, Class: protocol.ClassIN, Data: wire.A{Address: net.IPv4(10, 0, 0, 5)}}, true)
	cat.Add(wire.RR{Name: "host.local", Type: protocol.TypeTXT, Class: protocol.ClassIN, Data: wire.TXT{Strings: []string{"a=1"}}}, true)

	ns := New(cat)
	resp := ns.Resolve([]wire.Question{{Name: "host.local", Type: protocol.TypeANY, Class: protocol.ClassIN}}, false)

	if len(resp.Answers) != 2 {
		t.Fatalf("got %d answers, want 2 for ANY", len(resp.Answers))
	}
}

func TestResolve_FollowsCNAME(t *testing.T) {
	cat := catalog.New()
	cat.Add(wire.RR{Name: "alias.local", Type: protocol.TypeCNAME, Class: protocol.ClassIN, Data: wire.CNAME{Target: "host.local"}}, true)
	cat.Add(wire.RR{Name: "host.local", Type: protocol.TypeA, Class: protocol.ClassIN, Data: wire.A{Address: net.IPv4(10, 0, 0, 5)}}, true)

	ns := New(cat)
	resp := ns.Resolve([]wire.Question{{Name: "alias.local", Type: protocol.TypeA, Class: protocol.ClassIN}}, false)

	if len(resp.Answers) != 2 {
		t.Fatalf("got %d answers, want CNAME + A (2)", len(resp.Answers))
	}
}

func TestResolve_NoAnswerSetsNameError(t *testing.T) {
	cat := catalog.New()
	ns := New(cat)
	resp := ns.Resolve([]wire.Question{{Name: "missing.local", Type: protocol.TypeA, Class: protocol.ClassIN}}, false)

	if len(resp.Answers) != 0 {
		t.Fatalf("expected no answers for an unknown name")
	}
	if resp.Header.Flags&0x0F != protocol.RCodeNameErr {
		t.Errorf("expected RCODE=NameError, got flags=%#x", resp.Header.Flags)
	}
}

func TestResolve_AnswerAllQuestionsAddsAdditionals(t *testing.T) {
	cat := catalog.New()
	profile := &catalog.ServiceProfile{
		InstanceName: "Printer",
		ServiceName:  "_printer._tcp",
		Port:         515,
		Addresses:    []net.IP{net.IPv4(10, 0, 0, 9)},
	}
	for _, rr := range profile.Resources() {
		cat.Add(rr, true)
	}
	cat.Add(wire.RR{
		Name:  profile.QualifiedService(),
		Type:  protocol.TypePTR,
		Class: protocol.ClassIN,
		Data:  wire.PTR{Target: profile.FullyQualifiedInstance()},
	}, true)

	ns := New(cat)
	resp := ns.Resolve([]wire.Question{{Name: profile.QualifiedService(), Type: protocol.TypePTR, Class: protocol.ClassIN}}, true)

	if len(resp.Answers) != 1 {
		t.Fatalf("got %d answers, want 1 PTR", len(resp.Answers))
	}

	var sawSRV, sawTXT bool
	for _, rr := range resp.Additionals {
		switch rr.Data.(type) {
		case wire.SRV:
			sawSRV = true
		case wire.TXT:
			sawTXT = true
		}
	}
	if !sawSRV || !sawTXT {
		t.Errorf("expected SRV and TXT additionals for the PTR target, got %+v", resp.Additionals)
	}
}
