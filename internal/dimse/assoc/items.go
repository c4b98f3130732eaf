// Package assoc implements DICOM association negotiation: A-ASSOCIATE-RQ/AC
// item encoding, presentation-context proposal/acceptance, and the
// association state machine. Grounded on the caio-sobreiro/dicomnet
// reference's layering (a PDU layer beneath a DIMSE service) and built
// with plain encoding/binary per DESIGN.md.
package assoc

import (
	"encoding/binary"
	"fmt"
)

// Variable-item type codes from the DICOM Upper Layer protocol (Part 8).
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	itemMaxLength             = 0x51
	itemImplementationClassUID = 0x52
	itemImplementationVersion  = 0x55
)

// DefaultApplicationContext is the DICOM application context name used by
// every association this gateway negotiates.
const DefaultApplicationContext = "1.2.840.10008.3.1.1.1"

// writeItem appends one variable-length item: type(1) reserved(1) length(2,BE) value.
func writeItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, value...)
}

type rawItem struct {
	Type  byte
	Value []byte
}

// readItems parses a sequence of variable-length items until buf is exhausted.
func readItems(buf []byte) ([]rawItem, error) {
	var items []rawItem
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("assoc: truncated item header")
		}
		itemType := buf[0]
		length := binary.BigEndian.Uint16(buf[2:4])
		if int(length) > len(buf)-4 {
			return nil, fmt.Errorf("assoc: truncated item value")
		}
		items = append(items, rawItem{Type: itemType, Value: buf[4 : 4+int(length)]})
		buf = buf[4+int(length):]
	}
	return items, nil
}

func fixedField(s string, size int) []byte {
	b := make([]byte, size)
	copy(b, s)
	for i := len(s); i < size; i++ {
		b[i] = ' '
	}
	return b
}

func trimFixed(b []byte) string {
	i := len(b)
	for i > 0 && (b[i-1] == ' ' || b[i-1] == 0) {
		i--
	}
	return string(b[:i])
}
