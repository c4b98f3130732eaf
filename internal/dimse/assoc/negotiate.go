package assoc

import (
	"encoding/binary"
	"fmt"
)

// PresentationContextResult is the SCP's verdict on one proposed context.
type PresentationContextResult int

const (
	ResultAccepted                    PresentationContextResult = 0
	ResultUserRejected                PresentationContextResult = 1
	ResultAbstractSyntaxNotSupported  PresentationContextResult = 3
	ResultTransferSyntaxNotSupported  PresentationContextResult = 4
)

// ProposedContext is one presentation context offered by the SCU.
type ProposedContext struct {
	ID               byte // odd 1..255
	AbstractSyntax   string
	TransferSyntaxes []string // proposed, in SCU preference order
}

// AcceptedContext is the SCP's negotiated outcome for one context.
type AcceptedContext struct {
	ID             byte
	Result         PresentationContextResult
	TransferSyntax string // only meaningful when Result == ResultAccepted
}

// RequestParams is the decoded content of an A-ASSOCIATE-RQ.
type RequestParams struct {
	CalledAET          string
	CallingAET         string
	ApplicationContext string
	Contexts           []ProposedContext
	MaxPDULength       uint32
	ImplementationUID  string
	ImplementationVer  string
}

// EncodeRQ serializes an A-ASSOCIATE-RQ payload.
func EncodeRQ(p RequestParams) []byte {
	var buf []byte
	buf = append(buf, 0x00, 0x01) // protocol version 1
	buf = append(buf, 0x00, 0x00) // reserved
	buf = append(buf, fixedField(p.CalledAET, 16)...)
	buf = append(buf, fixedField(p.CallingAET, 16)...)
	buf = append(buf, make([]byte, 32)...) // reserved

	appCtx := p.ApplicationContext
	if appCtx == "" {
		appCtx = DefaultApplicationContext
	}
	buf = writeItem(buf, itemApplicationContext, []byte(appCtx))

	for _, ctx := range p.Contexts {
		var item []byte
		item = append(item, ctx.ID, 0, 0, 0)
		item = writeItem(item, itemAbstractSyntax, []byte(ctx.AbstractSyntax))
		for _, ts := range ctx.TransferSyntaxes {
			item = writeItem(item, itemTransferSyntax, []byte(ts))
		}
		buf = writeItem(buf, itemPresentationContextRQ, item)
	}

	buf = writeItem(buf, itemUserInformation, encodeUserInfo(p.MaxPDULength, p.ImplementationUID, p.ImplementationVer))
	return buf
}

func encodeUserInfo(maxLen uint32, implUID, implVer string) []byte {
	var info []byte
	var maxLenBuf [4]byte
	binary.BigEndian.PutUint32(maxLenBuf[:], maxLen)
	info = writeItem(info, itemMaxLength, maxLenBuf[:])
	if implUID != "" {
		info = writeItem(info, itemImplementationClassUID, []byte(implUID))
	}
	if implVer != "" {
		info = writeItem(info, itemImplementationVersion, []byte(implVer))
	}
	return info
}

// DecodeRQ parses the payload of an A-ASSOCIATE-RQ PDU.
func DecodeRQ(payload []byte) (*RequestParams, error) {
	if len(payload) < 68 {
		return nil, fmt.Errorf("assoc: A-ASSOCIATE-RQ too short")
	}
	called := trimFixed(payload[4:20])
	calling := trimFixed(payload[20:36])

	items, err := readItems(payload[68:])
	if err != nil {
		return nil, err
	}

	params := &RequestParams{CalledAET: called, CallingAET: calling}

	for _, it := range items {
		switch it.Type {
		case itemApplicationContext:
			params.ApplicationContext = string(it.Value)
		case itemPresentationContextRQ:
			ctx, err := decodeProposedContext(it.Value)
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

func decodeProposedContext(value []byte) (ProposedContext, error) {
	if len(value) < 4 {
		return ProposedContext{}, fmt.Errorf("assoc: truncated presentation context item")
	}
	id := value[0]
	sub, err := readItems(value[4:])
	if err != nil {
		return ProposedContext{}, err
	}
	ctx := ProposedContext{ID: id}
	for _, s := range sub {
		switch s.Type {
		case itemAbstractSyntax:
			ctx.AbstractSyntax = string(s.Value)
		case itemTransferSyntax:
			ctx.TransferSyntaxes = append(ctx.TransferSyntaxes, string(s.Value))
		}
	}
	return ctx, nil
}

func decodeUserInfo(value []byte) (maxLen uint32, implUID, implVer string, err error) {
	items, err := readItems(value)
	if err != nil {
		return 0, "", "", err
	}
	for _, it := range items {
		switch it.Type {
		case itemMaxLength:
			if len(it.Value) == 4 {
				maxLen = binary.BigEndian.Uint32(it.Value)
			}
		case itemImplementationClassUID:
			implUID = string(it.Value)
		case itemImplementationVersion:
			implVer = string(it.Value)
		}
	}
	return maxLen, implUID, implVer, nil
}

// Negotiate applies the SCP negotiation policy: accept the first transfer
// syntax in each proposed list that appears in preferredTS (preferredTS
// order is the tie-breaker), and reject an abstract syntax not in
// supportedAbstractSyntaxes. The negotiated max PDU length is computed
// separately by NegotiatedMaxPDU.
func Negotiate(contexts []ProposedContext, supportedAbstractSyntaxes map[string]bool, preferredTS []string) []AcceptedContext {
	accepted := make([]AcceptedContext, 0, len(contexts))
	for _, ctx := range contexts {
		if !supportedAbstractSyntaxes[ctx.AbstractSyntax] {
			accepted = append(accepted, AcceptedContext{ID: ctx.ID, Result: ResultAbstractSyntaxNotSupported})
			continue
		}
		ts, ok := pickTransferSyntax(ctx.TransferSyntaxes, preferredTS)
		if !ok {
			accepted = append(accepted, AcceptedContext{ID: ctx.ID, Result: ResultTransferSyntaxNotSupported})
			continue
		}
		accepted = append(accepted, AcceptedContext{ID: ctx.ID, Result: ResultAccepted, TransferSyntax: ts})
	}
	return accepted
}

// pickTransferSyntax returns the first entry of preferred that also appears
// in proposed; preferred's order is the tie-breaker, not proposed's.
func pickTransferSyntax(proposed, preferred []string) (string, bool) {
	proposedSet := make(map[string]bool, len(proposed))
	for _, ts := range proposed {
		proposedSet[ts] = true
	}
	for _, ts := range preferred {
		if proposedSet[ts] {
			return ts, true
		}
	}
	return "", false
}

// NegotiatedMaxPDU computes min(peerMax, localMax), treating peerMax == 0 as
// "no limit" (use localMax).
func NegotiatedMaxPDU(peerMax, localMax uint32) uint32 {
	if peerMax == 0 {
		return localMax
	}
	if peerMax < localMax {
		return peerMax
	}
	return localMax
}
