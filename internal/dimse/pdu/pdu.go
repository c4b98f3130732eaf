// Package pdu implements DICOM Upper-Layer PDU framing: the 1-byte type,
// 1-byte reserved, 4-byte big-endian length header, and PDV fragmentation
// for P-DATA-TF. Grounded on the caio-sobreiro/dicomnet reference's PDU
// layer (plain encoding/binary, no third-party DICOM codec; see DESIGN.md
// for why no such library is wired in).
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the Upper-Layer PDU type byte.
type Type byte

const (
	TypeAssociateRQ Type = 0x01
	TypeAssociateAC Type = 0x02
	TypeAssociateRJ Type = 0x03
	TypeDataTF      Type = 0x04
	TypeReleaseRQ   Type = 0x05
	TypeReleaseRP   Type = 0x06
	TypeAbort       Type = 0x07
)

func (t Type) String() string {
	switch t {
	case TypeAssociateRQ:
		return "A-ASSOCIATE-RQ"
	case TypeAssociateAC:
		return "A-ASSOCIATE-AC"
	case TypeAssociateRJ:
		return "A-ASSOCIATE-RJ"
	case TypeDataTF:
		return "P-DATA-TF"
	case TypeReleaseRQ:
		return "A-RELEASE-RQ"
	case TypeReleaseRP:
		return "A-RELEASE-RP"
	case TypeAbort:
		return "A-ABORT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// MaxLength bounds an incoming PDU's declared length; PDUs claiming more
// than this are aborted.
const MaxLength = 131072

// PDU is one decoded Upper-Layer protocol data unit: a type, the raw
// payload bytes following the 6-byte header.
type PDU struct {
	Type    Type
	Payload []byte
}

// ErrReservedNonZero is returned when a PDU's reserved byte must be zero but
// isn't, per the "reserved bits non-zero where required" abort condition.
var ErrReservedNonZero = fmt.Errorf("pdu: reserved byte must be zero")

// ErrLengthExceedsMax is returned when a PDU declares a length over MaxLength.
var ErrLengthExceedsMax = fmt.Errorf("pdu: declared length exceeds maximum")

// ReadPDU reads one Upper-Layer PDU from r: 1-byte type, 1-byte reserved
// (must be zero), 4-byte big-endian length, then that many payload bytes.
func ReadPDU(r io.Reader) (*PDU, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	typ := Type(header[0])
	reserved := header[1]
	length := binary.BigEndian.Uint32(header[2:6])

	if reserved != 0 {
		return nil, ErrReservedNonZero
	}
	if length > MaxLength {
		return nil, ErrLengthExceedsMax
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &PDU{Type: typ, Payload: payload}, nil
}

// WritePDU writes one Upper-Layer PDU to w.
func WritePDU(w io.Writer, typ Type, payload []byte) error {
	var header [6]byte
	header[0] = byte(typ)
	header[1] = 0
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
