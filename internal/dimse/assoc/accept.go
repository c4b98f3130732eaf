package assoc

import "fmt"

// AcceptParams is the content of an A-ASSOCIATE-AC PDU.
type AcceptParams struct {
	CalledAET          string
	CallingAET         string
	ApplicationContext string
	Contexts           []AcceptedContext
	MaxPDULength       uint32
	ImplementationUID  string
	ImplementationVer  string
}

// EncodeAC serializes an A-ASSOCIATE-AC payload. Fields echo the
// Implementation Class UID/Version Name the peer offered with the SCP's own
// values.
func EncodeAC(p AcceptParams) []byte {
	var buf []byte
	buf = append(buf, 0x00, 0x01)
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, fixedField(p.CalledAET, 16)...)
	buf = append(buf, fixedField(p.CallingAET, 16)...)
	buf = append(buf, make([]byte, 32)...)

	appCtx := p.ApplicationContext
	if appCtx == "" {
		appCtx = DefaultApplicationContext
	}
	buf = writeItem(buf, itemApplicationContext, []byte(appCtx))

	for _, ctx := range p.Contexts {
		var item []byte
		item = append(item, ctx.ID, 0, byte(ctx.Result), 0)
		if ctx.Result == ResultAccepted {
			item = writeItem(item, itemTransferSyntax, []byte(ctx.TransferSyntax))
		}
		buf = writeItem(buf, itemPresentationContextAC, item)
	}

	buf = writeItem(buf, itemUserInformation, encodeUserInfo(p.MaxPDULength, p.ImplementationUID, p.ImplementationVer))
	return buf
}

// DecodeAC parses the payload of an A-ASSOCIATE-AC PDU, the SCU side's
// counterpart to DecodeRQ.
func DecodeAC(payload []byte) (*AcceptParams, error) {
	if len(payload) < 68 {
		return nil, fmt.Errorf("assoc: A-ASSOCIATE-AC too short")
	}
	called := trimFixed(payload[4:20])
	calling := trimFixed(payload[20:36])

	items, err := readItems(payload[68:])
	if err != nil {
		return nil, err
	}

	params := &AcceptParams{CalledAET: called, CallingAET: calling}
	for _, it := range items {
		switch it.Type {
		case itemApplicationContext:
			params.ApplicationContext = string(it.Value)
		case itemPresentationContextAC:
			ctx, err := decodeAcceptedContext(it.Value)
			if err != nil {
				return nil, err
			}
			params.Contexts = append(params.Contexts, ctx)
		case itemUserInformation:
			maxLen, implUID, implVer, err := decodeUserInfo(it.Value)
			if err != nil {
				return nil, err
			}
			params.MaxPDULength = maxLen
			params.ImplementationUID = implUID
			params.ImplementationVer = implVer
		}
	}
	return params, nil
}

func decodeAcceptedContext(value []byte) (AcceptedContext, error) {
	if len(value) < 4 {
		return AcceptedContext{}, fmt.Errorf("assoc: truncated presentation context item")
	}
	ctx := AcceptedContext{ID: value[0], Result: PresentationContextResult(value[2])}
	if ctx.Result == ResultAccepted {
		sub, err := readItems(value[4:])
		if err != nil {
			return AcceptedContext{}, err
		}
		for _, s := range sub {
			if s.Type == itemTransferSyntax {
				ctx.TransferSyntax = string(s.Value)
			}
		}
	}
	return ctx, nil
}

// RejectReason and RejectSource are A-ASSOCIATE-RJ fields (DICOM Part 8
// Table 9-21). Only the reasons this gateway actually produces are named.
type RejectSource byte

const (
	RejectSourceServiceUser     RejectSource = 1
	RejectSourceServiceProvider RejectSource = 2
)

type RejectReason byte

const (
	RejectReasonNoReasonGiven        RejectReason = 1
	RejectReasonCalledAETNotRecognized RejectReason = 7
)

// EncodeRJ serializes an A-ASSOCIATE-RJ payload: result(1) source(1) reason(1),
// preceded by a reserved byte, per the Upper-Layer spec.
func EncodeRJ(source RejectSource, reason RejectReason) []byte {
	return []byte{0x00, 0x01, byte(source), byte(reason)}
}

// ReleaseRQ/RP and A-ABORT carry no meaningful payload beyond 4 reserved
// bytes for RQ/RP, or source/reason for ABORT.
func EncodeReleaseRQ() []byte { return make([]byte, 4) }
func EncodeReleaseRP() []byte { return make([]byte, 4) }

// AbortSource distinguishes who originated an A-ABORT.
type AbortSource byte

const (
	AbortSourceServiceUser     AbortSource = 0
	AbortSourceServiceProvider AbortSource = 2
)

// AbortReason enumerates the standard abort reason codes this gateway uses.
type AbortReason byte

const (
	AbortReasonNotSpecified       AbortReason = 0
	AbortReasonUnrecognizedPDU    AbortReason = 1
	AbortReasonUnexpectedPDU      AbortReason = 2
	AbortReasonUnrecognizedParam  AbortReason = 4
	AbortReasonUnexpectedParam    AbortReason = 5
	AbortReasonInvalidParamValue  AbortReason = 6
)

// EncodeAbort serializes an A-ABORT payload: reserved(2), source(1), reason(1).
func EncodeAbort(source AbortSource, reason AbortReason) []byte {
	return []byte{0, 0, byte(source), byte(reason)}
}
