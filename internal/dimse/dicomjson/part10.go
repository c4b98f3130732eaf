package dicomjson

import (
	"bytes"
	"encoding/binary"
)

// DefaultSOPClassUID is used when a dataset carries no (0008,0016) SOP
// Class UID (defaulted to Secondary Capture Image Storage).
const DefaultSOPClassUID = "1.2.840.10008.5.1.4.1.1.7"

// ExplicitVRLittleEndian is the transfer syntax Part-10 files are written
// with.
const ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

const part10Preamble = 128

// WritePart10 writes a DICOM Part-10 file: a 128-byte preamble, the "DICM"
// magic, a minimal file-meta group (transfer syntax + SOP Class/Instance
// UID), followed by the already-encoded dataset bytes. The dataset itself
// is treated as an opaque, pre-encoded blob (explicit-VR little-endian is
// the caller's responsibility to have produced); this function only adds
// the file-level envelope.
func WritePart10(sopClassUID, sopInstanceUID string, dataset []byte) []byte {
	if sopClassUID == "" {
		sopClassUID = DefaultSOPClassUID
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, part10Preamble))
	buf.WriteString("DICM")

	meta := encodeFileMetaGroup(sopClassUID, sopInstanceUID)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(meta)))

	buf.Write(encodeFileMetaElement("00020000", "UL", lenBuf[:]))
	buf.Write(meta)
	buf.Write(dataset)

	return buf.Bytes()
}

func encodeFileMetaGroup(sopClassUID, sopInstanceUID string) []byte {
	var buf bytes.Buffer
	buf.Write(encodeFileMetaElement("00020002", "UI", []byte(sopClassUID)))
	buf.Write(encodeFileMetaElement("00020003", "UI", []byte(sopInstanceUID)))
	buf.Write(encodeFileMetaElement("00020010", "UI", []byte(ExplicitVRLittleEndian)))
	return buf.Bytes()
}

// encodeFileMetaElement writes one explicit-VR little-endian element:
// group(2,LE) element(2,LE) vr(2) length(2,LE) value, padded to even length.
func encodeFileMetaElement(tag string, vr string, value []byte) []byte {
	if len(value)%2 != 0 {
		value = append(value, 0x00)
	}
	group := hexPairToUint16(tag[0:4])
	element := hexPairToUint16(tag[4:8])

	var buf bytes.Buffer
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], group)
	buf.Write(u16[:])
	binary.LittleEndian.PutUint16(u16[:], element)
	buf.Write(u16[:])
	buf.WriteString(vr)
	binary.LittleEndian.PutUint16(u16[:], uint16(len(value)))
	buf.Write(u16[:])
	buf.Write(value)
	return buf.Bytes()
}

func hexPairToUint16(s string) uint16 {
	var v uint16
	for _, r := range s {
		v <<= 4
		switch {
		case r >= '0' && r <= '9':
			v |= uint16(r - '0')
		case r >= 'a' && r <= 'f':
			v |= uint16(r-'a') + 10
		case r >= 'A' && r <= 'F':
			v |= uint16(r-'A') + 10
		}
	}
	return v
}

// IsPart10 reports whether data begins with the 128-byte preamble followed
// by the "DICM" magic.
func IsPart10(data []byte) bool {
	if len(data) < part10Preamble+4 {
		return false
	}
	return string(data[part10Preamble:part10Preamble+4]) == "DICM"
}
