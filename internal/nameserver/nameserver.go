// Package nameserver resolves DNS/mDNS questions against a catalog,
// implementing CNAME following and the additional-record enrichment
// policy mDNS responders use to answer in one round trip.
package nameserver

import (
	"github.com/joshuafuller/beacon/internal/catalog"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// NameServer answers questions from a single catalog.
type NameServer struct {
	Catalog *catalog.Catalog
}

// New returns a NameServer backed by cat.
func New(cat *catalog.Catalog) *NameServer {
	return &NameServer{Catalog: cat}
}

const maxCNAMEChain = 8

// Resolve answers every question in questions against the catalog, returning a
// response Message with AA=1. If answerAllQuestions is set, SRV-target
// A/AAAA and PTR-target SRV/TXT records are appended as additionals.
func (ns *NameServer) Resolve(questions []wire.Question, answerAllQuestions bool) *wire.Message {
	resp := wire.NewResponse()

	var answers []wire.RR
	for _, q := range questions {
		answers = append(answers, ns.resolveQuestion(q)...)
	}
	answers = dedupeRRs(answers)
	for _, rr := range answers {
		resp.AddAnswer(rr)
	}

	if answerAllQuestions {
		for _, rr := range ns.additionalsFor(answers) {
			resp.AddAdditional(rr)
		}
	}

	if len(answers) == 0 {
		resp.Header.Flags |= protocol.RCodeNameErr
	}
	return resp
}

// resolveQuestion answers one question, following CNAME chains: if a
// direct type match is absent but a CNAME RRset exists, the lookup
// continues at the CNAME's target, accumulating records from every hop.
func (ns *NameServer) resolveQuestion(q wire.Question) []wire.RR {
	name := q.Name
	var out []wire.RR

	for hop := 0; hop < maxCNAMEChain; hop++ {
		var direct []wire.RR
		if q.Type == protocol.TypeANY {
			for _, set := range ns.Catalog.Lookup(name) {
				direct = append(direct, set.Records...)
			}
		} else {
			set := ns.Catalog.LookupType(name, q.Type, q.EffectiveClass())
			direct = append(direct, set.Records...)
		}

		if len(direct) > 0 {
			out = append(out, direct...)
			return out
		}

		if q.Type == protocol.TypeANY || q.Type == protocol.TypeCNAME {
			return out
		}

		cname := ns.Catalog.LookupType(name, protocol.TypeCNAME, q.EffectiveClass())
		if len(cname.Records) == 0 {
			return out
		}
		out = append(out, cname.Records...)
		target, ok := cname.Records[0].Data.(wire.CNAME)
		if !ok {
			return out
		}
		name = target.Target
	}
	return out
}

// additionalsFor appends SRV-target A/AAAA records and PTR-target
// SRV/TXT records for every answer, deduplicating against the answer
// set itself.
func (ns *NameServer) additionalsFor(answers []wire.RR) []wire.RR {
	var extra []wire.RR

	for _, rr := range answers {
		switch d := rr.Data.(type) {
		case wire.SRV:
			extra = append(extra, ns.Catalog.LookupType(d.Target, protocol.TypeA, protocol.ClassIN).Records...)
			extra = append(extra, ns.Catalog.LookupType(d.Target, protocol.TypeAAAA, protocol.ClassIN).Records...)
		case wire.PTR:
			extra = append(extra, ns.Catalog.LookupType(d.Target, protocol.TypeSRV, protocol.ClassIN).Records...)
			extra = append(extra, ns.Catalog.LookupType(d.Target, protocol.TypeTXT, protocol.ClassIN).Records...)
		}
	}

	return dedupeAgainst(extra, answers)
}

func dedupeRRs(rrs []wire.RR) []wire.RR {
	var out []wire.RR
	for _, rr := range rrs {
		if !containsRR(out, rr) {
			out = append(out, rr)
		}
	}
	return out
}

func dedupeAgainst(rrs, exclude []wire.RR) []wire.RR {
	var out []wire.RR
	for _, rr := range rrs {
		if containsRR(exclude, rr) || containsRR(out, rr) {
			continue
		}
		out = append(out, rr)
	}
	return out
}

func containsRR(rrs []wire.RR, rr wire.RR) bool {
	for _, r := range rrs {
		if r.Type == rr.Type && r.EffectiveClass() == rr.EffectiveClass() &&
			equalFoldName(r.Name, rr.Name) && wire.RDataEqual(r.Data, rr.Data) {
			return true
		}
	}
	return false
}

func equalFoldName(a, b string) bool {
	return wire.EqualNames(a, b)
}
