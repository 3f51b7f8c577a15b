package wire

import (
	"net"

	"github.com/joshuafuller/beacon/internal/errs"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// RData is the typed payload of a resource record. The concrete type
// implements encoding; decoding is dispatched from a small registry keyed
// by RecordType in decodeRData. Unrecognized types decode to Unknown,
// preserving the raw bytes so they round-trip opaquely.
type RData interface {
	rdataWrite(w *Writer) error
}

// A is an IPv4 address record (RFC 1035 §3.4.1).
type A struct{ Address net.IP }

func (d A) rdataWrite(w *Writer) error { return w.writeIPv4(d.Address) }

// AAAA is an IPv6 address record (RFC 3596 §2.2).
type AAAA struct{ Address net.IP }

func (d AAAA) rdataWrite(w *Writer) error { return w.writeIPv6(d.Address) }

// PTR is a domain-name pointer record (RFC 1035 §3.3.12).
type PTR struct{ Target string }

func (d PTR) rdataWrite(w *Writer) error { return w.writeName(d.Target) }

// CNAME is a canonical-name alias record (RFC 1035 §3.3.1).
type CNAME struct{ Target string }

func (d CNAME) rdataWrite(w *Writer) error { return w.writeName(d.Target) }

// NS is a name-server record (RFC 1035 §3.3.11).
type NS struct{ Target string }

func (d NS) rdataWrite(w *Writer) error { return w.writeName(d.Target) }

// HINFO is a host-information record (RFC 1035 §3.3.2).
type HINFO struct {
	CPU string
	OS  string
}

func (d HINFO) rdataWrite(w *Writer) error {
	if err := w.writeCharString(d.CPU); err != nil {
		return err
	}
	return w.writeCharString(d.OS)
}

// MX is a mail-exchange record (RFC 1035 §3.3.9).
type MX struct {
	Preference uint16
	Exchange   string
}

func (d MX) rdataWrite(w *Writer) error {
	w.writeUint16(d.Preference)
	return w.writeName(d.Exchange)
}

// SOA is a start-of-authority record (RFC 1035 §3.3.13).
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (d SOA) rdataWrite(w *Writer) error {
	if err := w.writeName(d.MName); err != nil {
		return err
	}
	if err := w.writeName(d.RName); err != nil {
		return err
	}
	w.writeUint32(d.Serial)
	w.writeUint32(d.Refresh)
	w.writeUint32(d.Retry)
	w.writeUint32(d.Expire)
	w.writeUint32(d.Minimum)
	return nil
}

// TXT is a set of opaque text strings (RFC 1035 §3.3.14), used by DNS-SD
// to carry service metadata as key=value pairs (RFC 6763 §6).
type TXT struct{ Strings []string }

func (d TXT) rdataWrite(w *Writer) error {
	if len(d.Strings) == 0 {
		return w.writeCharString("")
	}
	for _, s := range d.Strings {
		if err := w.writeCharString(s); err != nil {
			return err
		}
	}
	return nil
}

// SRV is a service-location record (RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (d SRV) rdataWrite(w *Writer) error {
	w.writeUint16(d.Priority)
	w.writeUint16(d.Weight)
	w.writeUint16(d.Port)
	return w.writeName(d.Target)
}

// NSEC carries a next-secure owner name plus a verbatim type-bitmap blob
// (RFC 4034 §4.1, reused opportunistically by mDNS per RFC 6762 §6.1 for
// negative responses); the bitmap is preserved byte-for-byte.
type NSEC struct {
	NextDomain string
	TypeBitmap []byte
}

func (d NSEC) rdataWrite(w *Writer) error {
	if err := w.writeName(d.NextDomain); err != nil {
		return err
	}
	w.writeBytes(d.TypeBitmap)
	return nil
}

// Unknown preserves the raw RDATA of a record type this codec does not
// model explicitly, so such records round-trip opaquely.
type Unknown struct{ Bytes []byte }

func (d Unknown) rdataWrite(w *Writer) error {
	w.writeBytes(d.Bytes)
	return nil
}

// decodeRData parses rdlength bytes of RDATA for rtype starting at the
// reader's current position, leaving the cursor at start+rdlength on
// success.
func decodeRData(r *Reader, rtype protocol.RecordType, rdlength int) (RData, error) {
	start := r.pos
	end := start + rdlength
	if end > len(r.buf) {
		return nil, &errs.WireFormatError{Operation: "read rdata", Offset: start, Message: "rdata length exceeds message"}
	}

	var data RData
	var err error

	switch rtype {
	case protocol.TypeA:
		if rdlength != 4 {
			return nil, &errs.WireFormatError{Operation: "read A rdata", Offset: start, Message: "expected 4 bytes"}
		}
		var ip net.IP
		ip, err = r.readIPv4()
		data = A{Address: ip}
	case protocol.TypeAAAA:
		if rdlength != 16 {
			return nil, &errs.WireFormatError{Operation: "read AAAA rdata", Offset: start, Message: "expected 16 bytes"}
		}
		var ip net.IP
		ip, err = r.readIPv6()
		data = AAAA{Address: ip}
	case protocol.TypePTR:
		var name string
		name, err = r.readName()
		data = PTR{Target: name}
	case protocol.TypeCNAME:
		var name string
		name, err = r.readName()
		data = CNAME{Target: name}
	case protocol.TypeNS:
		var name string
		name, err = r.readName()
		data = NS{Target: name}
	case protocol.TypeHINFO:
		var cpu, os string
		cpu, err = r.readCharString()
		if err == nil {
			os, err = r.readCharString()
		}
		data = HINFO{CPU: cpu, OS: os}
	case protocol.TypeMX:
		var pref uint16
		var exchange string
		pref, err = r.readUint16()
		if err == nil {
			exchange, err = r.readName()
		}
		data = MX{Preference: pref, Exchange: exchange}
	case protocol.TypeSOA:
		data, err = decodeSOA(r)
	case protocol.TypeTXT:
		data, err = decodeTXT(r, end)
	case protocol.TypeSRV:
		data, err = decodeSRV(r)
	case protocol.TypeNSEC:
		data, err = decodeNSEC(r, end)
	default:
		var raw []byte
		raw, err = r.readBytes(rdlength)
		data = Unknown{Bytes: raw}
	}
	if err != nil {
		return nil, err
	}

	if r.pos != end {
		if r.pos > end {
			return nil, &errs.WireFormatError{Operation: "read rdata", Offset: start, Message: "rdata length mismatch"}
		}
		// A name-bearing record ended before the declared RDLENGTH (e.g.
		// compressed pointer shorter than the uncompressed form implies):
		// trust the explicit length, not the decompressed name size.
		r.pos = end
	}
	return data, nil
}

func decodeSOA(r *Reader) (SOA, error) {
	var s SOA
	var err error
	if s.MName, err = r.readName(); err != nil {
		return s, err
	}
	if s.RName, err = r.readName(); err != nil {
		return s, err
	}
	if s.Serial, err = r.readUint32(); err != nil {
		return s, err
	}
	if s.Refresh, err = r.readUint32(); err != nil {
		return s, err
	}
	if s.Retry, err = r.readUint32(); err != nil {
		return s, err
	}
	if s.Expire, err = r.readUint32(); err != nil {
		return s, err
	}
	s.Minimum, err = r.readUint32()
	return s, err
}

func decodeTXT(r *Reader, end int) (TXT, error) {
	var strs []string
	for r.pos < end {
		s, err := r.readCharString()
		if err != nil {
			return TXT{}, err
		}
		strs = append(strs, s)
	}
	return TXT{Strings: strs}, nil
}

func decodeSRV(r *Reader) (SRV, error) {
	var s SRV
	var err error
	if s.Priority, err = r.readUint16(); err != nil {
		return s, err
	}
	if s.Weight, err = r.readUint16(); err != nil {
		return s, err
	}
	if s.Port, err = r.readUint16(); err != nil {
		return s, err
	}
	s.Target, err = r.readName()
	return s, err
}

func decodeNSEC(r *Reader, end int) (NSEC, error) {
	var n NSEC
	var err error
	if n.NextDomain, err = r.readName(); err != nil {
		return n, err
	}
	if end < r.pos {
		return n, &errs.WireFormatError{Operation: "read NSEC rdata", Offset: r.pos, Message: "rdata length mismatch"}
	}
	n.TypeBitmap, err = r.readBytes(end - r.pos)
	return n, err
}
