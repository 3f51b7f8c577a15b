package wire

import "github.com/joshuafuller/beacon/internal/protocol"

// Header is the 12-octet DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsQuery reports whether the QR bit is clear.
func (h Header) IsQuery() bool { return h.Flags&protocol.FlagQR == 0 }

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&protocol.FlagQR != 0 }

// Authoritative reports whether the AA bit is set.
func (h Header) Authoritative() bool { return h.Flags&protocol.FlagAA != 0 }

// Truncated reports whether the TC bit is set.
func (h Header) Truncated() bool { return h.Flags&protocol.FlagTC != 0 }

// Question is an entry in the message's question section (RFC 1035
// §4.1.2). The QU bit (RFC 6762 §5.4) is overlaid on Class's high bit.
type Question struct {
	Name  string
	Type  protocol.RecordType
	Class protocol.Class
}

// WantsUnicastResponse reports whether the QU bit is set, requesting a
// unicast rather than multicast reply.
func (q Question) WantsUnicastResponse() bool {
	return q.Class&protocol.ClassCacheFlushBit != 0
}

// EffectiveClass returns the question's class with the QU bit masked off.
func (q Question) EffectiveClass() protocol.Class {
	return q.Class & protocol.ClassMask
}

// RR is a resource record appearing in the answer, authority, or
// additional section (RFC 1035 §4.1.3). CacheFlush overlays Class's high
// bit per RFC 6762 §10.2, marking the RRset as authoritative and
// replacing (rather than adding to) a receiver's cache.
type RR struct {
	Name       string
	Type       protocol.RecordType
	Class      protocol.Class
	CacheFlush bool
	TTL        uint32
	Data       RData
}

// EffectiveClass returns the record's class with the cache-flush bit
// masked off.
func (r RR) EffectiveClass() protocol.Class {
	return r.Class & protocol.ClassMask
}

// Message is a fully decoded DNS/mDNS message (RFC 1035 §4.1).
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []RR
	Authorities []RR
	Additionals []RR
}

// NewQuery returns an empty query Message with the given transaction ID.
// mDNS queries conventionally use ID 0 (RFC 6762 §18.1).
func NewQuery(id uint16) *Message {
	return &Message{Header: Header{ID: id}}
}

// NewResponse returns an empty authoritative response Message. mDNS
// responses use ID 0 and AA=1 regardless of the triggering query's ID
// (RFC 6762 §18.1, §18.4).
func NewResponse() *Message {
	return &Message{Header: Header{Flags: protocol.FlagQR | protocol.FlagAA}}
}

// AddQuestion appends a question and keeps QDCount in sync.
func (m *Message) AddQuestion(q Question) {
	m.Questions = append(m.Questions, q)
	m.Header.QDCount = uint16(len(m.Questions))
}

// AddAnswer appends an answer record and keeps ANCount in sync.
func (m *Message) AddAnswer(rr RR) {
	m.Answers = append(m.Answers, rr)
	m.Header.ANCount = uint16(len(m.Answers))
}

// AddAuthority appends an authority record and keeps NSCount in sync.
func (m *Message) AddAuthority(rr RR) {
	m.Authorities = append(m.Authorities, rr)
	m.Header.NSCount = uint16(len(m.Authorities))
}

// AddAdditional appends an additional record and keeps ARCount in sync.
func (m *Message) AddAdditional(rr RR) {
	m.Additionals = append(m.Additionals, rr)
	m.Header.ARCount = uint16(len(m.Additionals))
}
