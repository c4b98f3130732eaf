package scp

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/dicomgateway/gatewayd/internal/dimse/assoc"
	"github.com/dicomgateway/gatewayd/internal/dimse/command"
	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/dimse/pdu"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/storage"
)

// StoreHandler receives one complete C-STORE dataset for (sopClassUID,
// sopInstanceUID), typically persisting it via internal/storage and/or
// forwarding it into the pipeline's DIMSE-origin envelope.
type StoreHandler func(ctx context.Context, sopClassUID, sopInstanceUID string, dataset []byte) *errortaxonomy.Error

// Handler runs the SCP side of one DIMSE association: negotiation, then
// dispatching C-ECHO and C-STORE requests until the peer releases or
// aborts. Any other command (C-FIND, C-GET, C-MOVE) is answered with
// status 0x0211, unrecognized operation. Grounded on the caio-sobreiro/dicomnet reference's
// connection-handler loop.
type Handler struct {
	CalledAET              string
	SupportedAbstractSyntaxes map[string]bool
	PreferredTransferSyntaxes []string
	Storage                 storage.Backend
	OnStore                 StoreHandler
	Logger                  *slog.Logger
}

// Handle is the per-connection entry point registered as a Spec.Handle.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	machine := assoc.NewMachine()
	if err := machine.ReceiveAssociateRQ(); err != nil {
		return
	}

	rqPDU, err := pdu.ReadPDU(conn)
	if err != nil || rqPDU.Type != pdu.TypeAssociateRQ {
		machine.Abort()
		return
	}

	rq, err := assoc.DecodeRQ(rqPDU.Payload)
	if err != nil {
		h.logf("malformed A-ASSOCIATE-RQ: %v", err)
		_ = pdu.WritePDU(conn, pdu.TypeAssociateRJ, assoc.EncodeRJ(assoc.RejectSourceServiceProvider, assoc.RejectReasonNoReasonGiven))
		machine.Abort()
		return
	}
	if h.CalledAET != "" && rq.CalledAET != h.CalledAET {
		h.logf("A-ASSOCIATE-RQ for unknown called AET %q", rq.CalledAET)
		_ = pdu.WritePDU(conn, pdu.TypeAssociateRJ, assoc.EncodeRJ(assoc.RejectSourceServiceUser, assoc.RejectReasonCalledAETNotRecognized))
		_ = machine.SendReject()
		return
	}

	accepted := assoc.Negotiate(rq.Contexts, h.SupportedAbstractSyntaxes, h.PreferredTransferSyntaxes)

	ac := assoc.AcceptParams{
		CalledAET:    h.CalledAET,
		CallingAET:   rq.CallingAET,
		Contexts:     accepted,
		MaxPDULength: pdu.MaxLength,
	}
	if err := pdu.WritePDU(conn, pdu.TypeAssociateAC, assoc.EncodeAC(ac)); err != nil {
		machine.Abort()
		return
	}
	if err := machine.SendAccept(); err != nil {
		machine.Abort()
		return
	}

	contextByID := make(map[byte]assoc.AcceptedContext, len(accepted))
	for _, c := range accepted {
		contextByID[c.ID] = c
	}

	h.serveAssociation(ctx, conn, machine, contextByID)
}

func (h *Handler) serveAssociation(ctx context.Context, conn net.Conn, machine *assoc.Machine, contexts map[byte]assoc.AcceptedContext) {
	for {
		requestPDU, err := pdu.ReadPDU(conn)
		if err != nil {
			return
		}

		switch requestPDU.Type {
		case pdu.TypeDataTF:
			if err := machine.ReceiveData(); err != nil {
				return
			}
			if err := h.handleDataTF(ctx, conn, requestPDU.Payload, contexts); err != nil {
				h.logf("P-DATA-TF handling failed: %v", err)
				return
			}
		case pdu.TypeReleaseRQ:
			_ = pdu.WritePDU(conn, pdu.TypeReleaseRP, assoc.EncodeReleaseRP())
			_ = machine.Release()
			return
		case pdu.TypeAbort:
			machine.Abort()
			return
		default:
			machine.Abort()
			return
		}
	}
}

func (h *Handler) handleDataTF(ctx context.Context, conn net.Conn, payload []byte, contexts map[byte]assoc.AcceptedContext) error {
	pdvs, err := pdu.DecodePDVs(payload)
	if err != nil {
		return err
	}
	if len(pdvs) == 0 {
		return fmt.Errorf("scp: empty P-DATA-TF")
	}

	reassembler := pdu.NewReassembler(pdvs[0].ContextID)
	for _, p := range pdvs {
		if err := reassembler.Feed(p); err != nil {
			return err
		}
	}
	for !reassembler.Done() {
		next, err := pdu.ReadPDU(conn)
		if err != nil {
			return err
		}
		if next.Type != pdu.TypeDataTF {
			return fmt.Errorf("scp: expected P-DATA-TF continuation, got %s", next.Type)
		}
		more, err := pdu.DecodePDVs(next.Payload)
		if err != nil {
			return err
		}
		for _, p := range more {
			if err := reassembler.Feed(p); err != nil {
				return err
			}
		}
	}

	reqID, err := dicomjson.FromJSON(reassembler.Command())
	if err != nil {
		return err
	}
	req, ferr := command.Decode(reqID)
	if ferr != nil {
		return ferr
	}
	dataset, _ := reassembler.Dataset()

	contextID := reassembler.ContextID
	return h.dispatch(ctx, conn, contextID, req, dataset)
}

func (h *Handler) dispatch(ctx context.Context, conn net.Conn, contextID byte, req command.Message, dataset []byte) error {
	switch req.CommandField {
	case command.CEchoRQ:
		return h.respond(conn, contextID, command.Message{
			CommandField:              command.CEchoRSP,
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    command.StatusSuccess,
			DataSetType:               0x0101,
		}, nil)
	case command.CStoreRQ:
		status := command.StatusSuccess
		if h.OnStore != nil {
			if ferr := h.OnStore(ctx, req.AffectedSOPClassUID, req.AffectedSOPInstanceUID, dataset); ferr != nil {
				status = command.Status(0xA700) // out-of-resources/processing-failure range
			}
		}
		return h.respond(conn, contextID, command.Message{
			CommandField:              command.CStoreRSP,
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
			Status:                    status,
			DataSetType:               0x0101,
		}, nil)
	default:
		return h.respond(conn, contextID, command.Message{
			CommandField:              command.Field(uint16(req.CommandField) | 0x8000),
			MessageIDBeingRespondedTo: req.MessageID,
			Status:                    command.Status(0x0211), // unrecognized operation
			DataSetType:               0x0101,
		}, nil)
	}
}

func (h *Handler) respond(conn net.Conn, contextID byte, resp command.Message, dataset []byte) error {
	id := command.Encode(resp)
	body, err := dicomjson.ToJSON(id)
	if err != nil {
		return err
	}
	pdvs := []pdu.PDV{{ContextID: contextID, IsCommand: true, IsLast: true, Fragment: body}}
	if dataset != nil {
		pdvs = append(pdvs, pdu.PDV{ContextID: contextID, IsCommand: false, IsLast: true, Fragment: dataset})
	}
	return pdu.WritePDU(conn, pdu.TypeDataTF, pdu.EncodePDVs(pdvs))
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(fmt.Sprintf(format, args...))
}
