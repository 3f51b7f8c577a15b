package wire

import (
	"encoding/binary"
	"net"

	"github.com/joshuafuller/beacon/internal/errs"
)

// Writer is a single contiguous output buffer with a name-compression
// pointer table, used to serialize a Message.
type Writer struct {
	buf  []byte
	ptrs map[string]int
}

// NewWriter returns a Writer ready to accept a serialized Message.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 512)}
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) pos() int { return len(w.buf) }

func (w *Writer) writeUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) writeBytes(b []byte)  { w.buf = append(w.buf, b...) }

func (w *Writer) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) writeIPv4(ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return &errs.ValidationError{Field: "address", Value: ip.String(), Message: "not an IPv4 address"}
	}
	w.writeBytes(v4)
	return nil
}

func (w *Writer) writeIPv6(ip net.IP) error {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return &errs.ValidationError{Field: "address", Value: ip.String(), Message: "not an IPv6 address"}
	}
	w.writeBytes(v6)
	return nil
}

func (w *Writer) writeCharString(s string) error {
	if len(s) > 255 {
		return &errs.ValidationError{Field: "string", Value: s, Message: "character-string exceeds 255 octets"}
	}
	w.writeUint8(uint8(len(s)))
	w.writeBytes([]byte(s))
	return nil
}

// pushLength reserves a two-octet length placeholder and returns its
// offset so the caller can pop it once the scoped data has been written.
func (w *Writer) pushLength() int {
	mark := w.pos()
	w.writeUint16(0)
	return mark
}

// popLength back-patches the reserved u16 at mark with the number of
// bytes written since the matching pushLength call.
func (w *Writer) popLength(mark int) {
	length := w.pos() - mark - 2
	binary.BigEndian.PutUint16(w.buf[mark:mark+2], uint16(length))
}

// Reader walks a complete DNS message buffer with a cursor, following
// compression pointers relative to the whole buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential parsing from offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current read cursor.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) requireBytes(n int, op string) error {
	if r.pos+n > len(r.buf) {
		return &errs.WireFormatError{Operation: op, Offset: r.pos, Message: "unexpected end of message"}
	}
	return nil
}

func (r *Reader) readUint8() (uint8, error) {
	if err := r.requireBytes(1, "read uint8"); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) readUint16() (uint16, error) {
	if err := r.requireBytes(2, "read uint16"); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *Reader) readUint32() (uint32, error) {
	if err := r.requireBytes(4, "read uint32"); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	if err := r.requireBytes(n, "read bytes"); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

func (r *Reader) readIPv4() (net.IP, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	return net.IPv4(b[0], b[1], b[2], b[3]), nil
}

func (r *Reader) readIPv6() (net.IP, error) {
	b, err := r.readBytes(16)
	if err != nil {
		return nil, err
	}
	return net.IP(b), nil
}

func (r *Reader) readCharString() (string, error) {
	n, err := r.readUint8()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
