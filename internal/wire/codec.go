// Package wire implements the RFC 1035 binary message format used by mDNS
// (RFC 6762) and DNS-SD (RFC 6763): header/question/RR parsing, the typed
// RDATA registry, name compression, and the truncation policy applied to
// oversize responses.
package wire

import (
	"github.com/joshuafuller/beacon/internal/errs"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// RDataEqual reports whether two RDATA values serialize identically. Used
// by the catalog to dedupe records within an RRset without a type switch
// over every variant.
func RDataEqual(a, b RData) bool {
	wa, wb := NewWriter(), NewWriter()
	var errA, errB error
	if a != nil {
		errA = a.rdataWrite(wa)
	}
	if b != nil {
		errB = b.rdataWrite(wb)
	}
	if errA != nil || errB != nil {
		return false
	}
	return string(wa.Bytes()) == string(wb.Bytes())
}

// Marshal serializes msg into its wire representation, compressing names
// against every name and RDATA-embedded name already written, in section
// order: header, questions, answers, authorities, additionals.
func Marshal(msg *Message) ([]byte, error) {
	w := NewWriter()

	w.writeUint16(msg.Header.ID)
	w.writeUint16(msg.Header.Flags)
	w.writeUint16(uint16(len(msg.Questions)))
	w.writeUint16(uint16(len(msg.Answers)))
	w.writeUint16(uint16(len(msg.Authorities)))
	w.writeUint16(uint16(len(msg.Additionals)))

	for _, q := range msg.Questions {
		if err := w.writeName(q.Name); err != nil {
			return nil, err
		}
		w.writeUint16(uint16(q.Type))
		w.writeUint16(uint16(q.Class))
	}

	for _, rr := range msg.Answers {
		if err := writeRR(w, rr); err != nil {
			return nil, err
		}
	}
	for _, rr := range msg.Authorities {
		if err := writeRR(w, rr); err != nil {
			return nil, err
		}
	}
	for _, rr := range msg.Additionals {
		if err := writeRR(w, rr); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

func writeRR(w *Writer, rr RR) error {
	if err := w.writeName(rr.Name); err != nil {
		return err
	}
	w.writeUint16(uint16(rr.Type))

	class := rr.Class &^ protocol.ClassCacheFlushBit
	if rr.CacheFlush {
		class |= protocol.ClassCacheFlushBit
	}
	w.writeUint16(uint16(class))
	w.writeUint32(rr.TTL)

	mark := w.pushLength()
	if rr.Data != nil {
		if err := rr.Data.rdataWrite(w); err != nil {
			return err
		}
	}
	w.popLength(mark)
	return nil
}

// Unmarshal parses a complete mDNS/DNS message from buf.
func Unmarshal(buf []byte) (*Message, error) {
	r := NewReader(buf)
	msg := &Message{}

	var err error
	if msg.Header.ID, err = r.readUint16(); err != nil {
		return nil, err
	}
	if msg.Header.Flags, err = r.readUint16(); err != nil {
		return nil, err
	}
	if msg.Header.QDCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if msg.Header.ANCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if msg.Header.NSCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if msg.Header.ARCount, err = r.readUint16(); err != nil {
		return nil, err
	}

	for i := 0; i < int(msg.Header.QDCount); i++ {
		q, err := readQuestion(r)
		if err != nil {
			return nil, err
		}
		msg.Questions = append(msg.Questions, q)
	}

	if msg.Answers, err = readRRs(r, int(msg.Header.ANCount)); err != nil {
		return nil, err
	}
	if msg.Authorities, err = readRRs(r, int(msg.Header.NSCount)); err != nil {
		return nil, err
	}
	if msg.Additionals, err = readRRs(r, int(msg.Header.ARCount)); err != nil {
		return nil, err
	}

	return msg, nil
}

func readQuestion(r *Reader) (Question, error) {
	name, err := r.readName()
	if err != nil {
		return Question{}, err
	}
	qtype, err := r.readUint16()
	if err != nil {
		return Question{}, err
	}
	class, err := r.readUint16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, Type: protocol.RecordType(qtype), Class: protocol.Class(class)}, nil
}

func readRRs(r *Reader, count int) ([]RR, error) {
	if count == 0 {
		return nil, nil
	}
	rrs := make([]RR, 0, count)
	for i := 0; i < count; i++ {
		rr, err := readRR(r)
		if err != nil {
			return nil, err
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

func readRR(r *Reader) (RR, error) {
	name, err := r.readName()
	if err != nil {
		return RR{}, err
	}
	rtype, err := r.readUint16()
	if err != nil {
		return RR{}, err
	}
	class, err := r.readUint16()
	if err != nil {
		return RR{}, err
	}
	ttl, err := r.readUint32()
	if err != nil {
		return RR{}, err
	}
	rdlength, err := r.readUint16()
	if err != nil {
		return RR{}, err
	}

	rr := RR{
		Name:       name,
		Type:       protocol.RecordType(rtype),
		Class:      protocol.Class(class) & protocol.ClassMask,
		CacheFlush: protocol.Class(class)&protocol.ClassCacheFlushBit != 0,
		TTL:        ttl,
	}

	data, err := decodeRData(r, rr.Type, int(rdlength))
	if err != nil {
		return RR{}, err
	}
	rr.Data = data
	return rr, nil
}

// Truncate re-serializes msg so the wire form fits within maxLen, dropping
// whole records from the end of the additional section first, then the
// authority section, then the answer section (RFC 6762 §17, RFC 1035
// §4.1.1 TC semantics). TC is set only when an answer record itself had
// to be dropped; losing only authority or additional records does not
// set TC since those sections are advisory. Returns the final encoded
// bytes and whether any record was dropped.
func Truncate(msg *Message, maxLen int) ([]byte, bool, error) {
	working := &Message{
		Header:      msg.Header,
		Questions:   msg.Questions,
		Answers:     append([]RR(nil), msg.Answers...),
		Authorities: append([]RR(nil), msg.Authorities...),
		Additionals: append([]RR(nil), msg.Additionals...),
	}

	encode := func() ([]byte, error) {
		working.Header.ANCount = uint16(len(working.Answers))
		working.Header.NSCount = uint16(len(working.Authorities))
		working.Header.ARCount = uint16(len(working.Additionals))
		return Marshal(working)
	}

	buf, err := encode()
	if err != nil {
		return nil, false, err
	}
	if len(buf) <= maxLen {
		return buf, false, nil
	}

	dropped := false
	for len(working.Additionals) > 0 && len(buf) > maxLen {
		working.Additionals = working.Additionals[:len(working.Additionals)-1]
		dropped = true
		if buf, err = encode(); err != nil {
			return nil, false, err
		}
	}
	for len(working.Authorities) > 0 && len(buf) > maxLen {
		working.Authorities = working.Authorities[:len(working.Authorities)-1]
		dropped = true
		if buf, err = encode(); err != nil {
			return nil, false, err
		}
	}

	answersDropped := false
	for len(working.Answers) > 1 && len(buf) > maxLen {
		working.Answers = working.Answers[:len(working.Answers)-1]
		answersDropped = true
		if buf, err = encode(); err != nil {
			return nil, false, err
		}
	}

	if answersDropped {
		working.Header.Flags |= protocol.FlagTC
		if buf, err = encode(); err != nil {
			return nil, false, err
		}
	}

	if len(buf) > maxLen && len(working.Answers) <= 1 {
		return nil, dropped, &errs.WireFormatError{Operation: "truncate", Offset: 0, Message: "message cannot be reduced below size limit"}
	}

	return buf, dropped || answersDropped, nil
}
