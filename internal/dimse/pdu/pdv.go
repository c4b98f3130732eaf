package pdu

import (
	"encoding/binary"
	"fmt"
)

// PDV message-control-header bit meanings.
const (
	mchDatasetBit = 1 << 0 // 0 = command, 1 = dataset
	mchLastBit    = 1 << 1 // 0 = not last, 1 = last
)

// PDV is one Protocol Data Value carried inside a P-DATA-TF PDU: a
// presentation-context ID and a fragment of either the command set or the
// dataset, tagged with whether it is the last fragment of its kind.
type PDV struct {
	ContextID byte
	IsCommand bool
	IsLast    bool
	Fragment  []byte
}

func messageControlHeader(isCommand, isLast bool) byte {
	var h byte
	if !isCommand {
		h |= mchDatasetBit
	}
	if isLast {
		h |= mchLastBit
	}
	return h
}

// EncodePDVs serializes PDVs into the payload of a single P-DATA-TF PDU.
// Each PDV item is length(4,BE) | context-id(1) | message-control-header(1) | fragment.
// The per-item length field counts the context-id, header, and fragment bytes.
func EncodePDVs(pdvs []PDV) []byte {
	var out []byte
	for _, pdv := range pdvs {
		itemLen := uint32(2 + len(pdv.Fragment))
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], itemLen)

		out = append(out, lenBuf[:]...)
		out = append(out, pdv.ContextID, messageControlHeader(pdv.IsCommand, pdv.IsLast))
		out = append(out, pdv.Fragment...)
	}
	return out
}

// DecodePDVs parses the payload of a P-DATA-TF PDU into its constituent PDVs.
func DecodePDVs(payload []byte) ([]PDV, error) {
	var pdvs []PDV
	for len(payload) > 0 {
		if len(payload) < 6 {
			return nil, fmt.Errorf("pdu: truncated PDV item header")
		}
		itemLen := binary.BigEndian.Uint32(payload[0:4])
		if itemLen < 2 {
			return nil, fmt.Errorf("pdu: PDV item length %d below the 2-byte header", itemLen)
		}
		if uint32(len(payload)-4) < itemLen {
			return nil, fmt.Errorf("pdu: truncated PDV item body")
		}
		contextID := payload[4]
		mch := payload[5]
		fragment := payload[6 : 4+itemLen]

		pdvs = append(pdvs, PDV{
			ContextID: contextID,
			IsCommand: mch&mchDatasetBit == 0,
			IsLast:    mch&mchLastBit != 0,
			Fragment:  fragment,
		})

		payload = payload[4+itemLen:]
	}
	return pdvs, nil
}

// Reassembler accumulates command and dataset PDVs for one DIMSE message
// until both the last-command and (if present) last-dataset bits are seen:
// a DIMSE message is the concatenation of all command PDVs up to the last
// command bit, optionally followed by dataset PDVs up to the last dataset
// bit.
type Reassembler struct {
	ContextID   byte
	command     []byte
	dataset     []byte
	commandDone bool
	datasetDone bool
	sawDataset  bool
}

// NewReassembler starts a reassembly for the given presentation context.
func NewReassembler(contextID byte) *Reassembler {
	return &Reassembler{ContextID: contextID}
}

// Feed appends one PDV's fragment to the command or dataset accumulator.
func (r *Reassembler) Feed(pdv PDV) error {
	if pdv.ContextID != r.ContextID {
		return fmt.Errorf("pdu: unexpected presentation context id %d (want %d)", pdv.ContextID, r.ContextID)
	}
	if pdv.IsCommand {
		r.command = append(r.command, pdv.Fragment...)
		if pdv.IsLast {
			r.commandDone = true
		}
	} else {
		r.sawDataset = true
		r.dataset = append(r.dataset, pdv.Fragment...)
		if pdv.IsLast {
			r.datasetDone = true
		}
	}
	return nil
}

// Done reports whether the message is fully reassembled: the command is
// complete, and either no dataset PDV has arrived or the dataset is complete.
func (r *Reassembler) Done() bool {
	if !r.commandDone {
		return false
	}
	return !r.sawDataset || r.datasetDone
}

// Command returns the reassembled command-set bytes.
func (r *Reassembler) Command() []byte { return r.command }

// Dataset returns the reassembled dataset bytes, and whether any dataset
// PDV was seen at all.
func (r *Reassembler) Dataset() ([]byte, bool) { return r.dataset, r.sawDataset }
