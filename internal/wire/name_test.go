package wire

import (
	"net"
	"testing"

	"github.com/joshuafuller/beacon/internal/protocol"
)

func TestEqualNames(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Foo.Local", "foo.local", true},
		{"foo.local.", "foo.local", true},
		{"foo.local", "bar.local", false},
	}
	for _, c := range cases {
		if got := EqualNames(c.a, c.b); got != c.want {
			t.Errorf("EqualNames(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestIsSubdomainOf(t *testing.T) {
	cases := []struct {
		name, parent string
		want         bool
	}{
		{"_http._tcp.local", "local", true},
		{"local", "local", true},
		{"evillocal", "local", false},
		{"local", "_http._tcp.local", false},
	}
	for _, c := range cases {
		if got := IsSubdomainOf(c.name, c.parent); got != c.want {
			t.Errorf("IsSubdomainOf(%q, %q) = %v, want %v", c.name, c.parent, got, c.want)
		}
	}
}

// TestUnmarshal_KnownQuery decodes a literal "appletv.local A? IN" query,
// the worked example used throughout RFC 6762 discussions of the wire
// format: a zero ID, no flags, one question, no other sections.
func TestUnmarshal_KnownQuery(t *testing.T) {
	buf := []byte{
		0x00, 0x00, // ID = 0
		0x00, 0x00, // flags = 0
		0x00, 0x01, // QDCount = 1
		0x00, 0x00, // ANCount = 0
		0x00, 0x00, // NSCount = 0
		0x00, 0x00, // ARCount = 0
		0x07, 'a', 'p', 'p', 'l', 'e', 't', 'v',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01, // TYPE A
		0x00, 0x01, // CLASS IN
	}

	msg, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if msg.Header.ID != 0 {
		t.Errorf("ID = %d, want 0", msg.Header.ID)
	}
	if len(msg.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(msg.Questions))
	}
	if len(msg.Answers) != 0 || len(msg.Authorities) != 0 || len(msg.Additionals) != 0 {
		t.Errorf("expected empty answer/authority/additional sections")
	}

	q := msg.Questions[0]
	if q.Name != "appletv.local" {
		t.Errorf("question name = %q, want appletv.local", q.Name)
	}
	if q.Type != protocol.TypeA {
		t.Errorf("question type = %v, want A", q.Type)
	}
	if q.EffectiveClass() != protocol.ClassIN {
		t.Errorf("question class = %v, want IN", q.EffectiveClass())
	}
}

// TestMarshalUnmarshal_AppleTVResponse exercises the answer shape of the
// companion response example: an A record with the cache-flush bit set
// plus AAAA and NSEC additionals for the same owner name.
func TestMarshalUnmarshal_AppleTVResponse(t *testing.T) {
	msg := NewResponse()
	msg.AddAnswer(RR{
		Name:       "appletv.local",
		Type:       protocol.TypeA,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        30720,
		Data:       A{Address: net.IPv4(153, 109, 7, 90)},
	})
	msg.AddAdditional(RR{
		Name:       "appletv.local",
		Type:       protocol.TypeAAAA,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        30720,
		Data:       AAAA{Address: net.ParseIP("fe80::223:32ff:feb1:2152")},
	})
	msg.AddAdditional(RR{
		Name:       "appletv.local",
		Type:       protocol.TypeNSEC,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        30720,
		Data:       NSEC{NextDomain: "appletv.local", TypeBitmap: []byte{0x00, 0x04, 0x40, 0x00, 0x00, 0x08}},
	})

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	a, ok := got.Answers[0].Data.(A)
	if !ok || !a.Address.Equal(net.IPv4(153, 109, 7, 90)) {
		t.Errorf("answer A address = %v, want 153.109.7.90", got.Answers[0].Data)
	}
	if !got.Answers[0].CacheFlush {
		t.Errorf("expected cache-flush bit on the A answer")
	}

	if len(got.Additionals) != 2 {
		t.Fatalf("got %d additionals, want 2", len(got.Additionals))
	}
	aaaa, ok := got.Additionals[0].Data.(AAAA)
	if !ok || !aaaa.Address.Equal(net.ParseIP("fe80::223:32ff:feb1:2152")) {
		t.Errorf("additional AAAA address = %v, want fe80::223:32ff:feb1:2152", got.Additionals[0].Data)
	}
	nsec, ok := got.Additionals[1].Data.(NSEC)
	if !ok || nsec.NextDomain != "appletv.local" {
		t.Errorf("additional NSEC = %+v, want next domain appletv.local", got.Additionals[1].Data)
	}
}
