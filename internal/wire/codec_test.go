package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/joshuafuller/beacon/internal/protocol"
)

func TestMarshalUnmarshal_QueryRoundTrip(t *testing.T) {
	msg := NewQuery(0)
	msg.AddQuestion(Question{Name: "_http._tcp.local", Type: protocol.TypePTR, Class: protocol.ClassIN})

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.Header.IsResponse() {
		t.Errorf("QR bit set on a query")
	}
	if len(got.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(got.Questions))
	}
	if got.Questions[0].Name != "_http._tcp.local" {
		t.Errorf("question name = %q, want _http._tcp.local", got.Questions[0].Name)
	}
	if got.Questions[0].Type != protocol.TypePTR {
		t.Errorf("question type = %v, want PTR", got.Questions[0].Type)
	}
}

func TestMarshalUnmarshal_ResponseWithAnswers(t *testing.T) {
	msg := NewResponse()
	msg.AddAnswer(RR{
		Name:       "host.local",
		Type:       protocol.TypeA,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        protocol.TTLHostAddr,
		Data:       A{Address: net.IPv4(192, 168, 1, 42)},
	})
	msg.AddAnswer(RR{
		Name:  "_http._tcp.local",
		Type:  protocol.TypePTR,
		Class: protocol.ClassIN,
		TTL:   protocol.TTLShared,
		Data:  PTR{Target: "My Service._http._tcp.local"},
	})

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !got.Header.IsResponse() || !got.Header.Authoritative() {
		t.Errorf("response should have QR=1 and AA=1 per RFC 6762 §18")
	}
	if len(got.Answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(got.Answers))
	}

	a, ok := got.Answers[0].Data.(A)
	if !ok {
		t.Fatalf("answer 0 data type = %T, want A", got.Answers[0].Data)
	}
	if !a.Address.Equal(net.IPv4(192, 168, 1, 42)) {
		t.Errorf("A address = %v, want 192.168.1.42", a.Address)
	}
	if !got.Answers[0].CacheFlush {
		t.Errorf("cache-flush bit lost on round trip")
	}

	ptr, ok := got.Answers[1].Data.(PTR)
	if !ok {
		t.Fatalf("answer 1 data type = %T, want PTR", got.Answers[1].Data)
	}
	if ptr.Target != "My Service._http._tcp.local" {
		t.Errorf("PTR target = %q, want %q", ptr.Target, "My Service._http._tcp.local")
	}
}

func TestMarshal_NameCompressionReducesSize(t *testing.T) {
	msg := NewResponse()
	for i := 0; i < 4; i++ {
		msg.AddAnswer(RR{
			Name:  "_http._tcp.local",
			Type:  protocol.TypePTR,
			Class: protocol.ClassIN,
			TTL:   protocol.TTLShared,
			Data:  PTR{Target: "instance.local"},
		})
	}

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Repeated owner names should compress to a 2-byte pointer after the
	// first occurrence; an uncompressed encoding would need ~18 bytes per
	// repeat of "_http._tcp.local".
	if len(buf) > 160 {
		t.Errorf("encoded size = %d bytes, suspiciously large for 4 repeated names (compression not applied?)", len(buf))
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for i, rr := range got.Answers {
		if rr.Name != "_http._tcp.local" {
			t.Errorf("answer %d name = %q, want _http._tcp.local", i, rr.Name)
		}
	}
}

func TestUnmarshal_RejectsForwardCompressionPointer(t *testing.T) {
	// A hand-built header claiming one question, whose name is a pointer
	// to an offset that has not been written yet (forward reference),
	// which RFC 1035 compression never produces and must be rejected.
	buf := []byte{
		0, 0, // ID
		0, 0, // flags
		0, 1, // QDCount
		0, 0, 0, 0, 0, 0,
		0xC0, 0x20, // pointer to offset 0x20, beyond the buffer and forward of pos
		0, 1, // type
		0, 1, // class
	}

	if _, err := Unmarshal(buf); err == nil {
		t.Errorf("Unmarshal() accepted a forward compression pointer, want error")
	}
}

func TestUnmarshal_RejectsTruncatedMessage(t *testing.T) {
	buf := []byte{0, 0, 0, 0, 0, 1}
	if _, err := Unmarshal(buf); err == nil {
		t.Errorf("Unmarshal() accepted a truncated header, want error")
	}
}

func TestTruncate_DropsAdditionalsBeforeSettingTC(t *testing.T) {
	msg := NewResponse()
	msg.AddAnswer(RR{
		Name:  "host.local",
		Type:  protocol.TypeA,
		Class: protocol.ClassIN,
		TTL:   protocol.TTLHostAddr,
		Data:  A{Address: net.IPv4(10, 0, 0, 1)},
	})
	for i := 0; i < 50; i++ {
		msg.AddAdditional(RR{
			Name:  "host.local",
			Type:  protocol.TypeTXT,
			Class: protocol.ClassIN,
			TTL:   protocol.TTLShared,
			Data:  TXT{Strings: []string{string(bytes.Repeat([]byte("x"), 200))}},
		})
	}

	buf, dropped, err := Truncate(msg, 600)
	if err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if !dropped {
		t.Errorf("expected records to be dropped to fit under 600 bytes")
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() of truncated message error = %v", err)
	}
	if got.Header.Truncated() {
		t.Errorf("TC bit set even though only additionals were dropped, not answers")
	}
	if len(got.Answers) != 1 {
		t.Errorf("got %d answers, want the single answer preserved", len(got.Answers))
	}
}
