// Package client implements the DIMSE SCU role: message ID allocation,
// association dialing, and the C-ECHO/C-FIND/C-GET/C-STORE/C-MOVE request
// verbs a backend driver issues against a configured destination AET.
// Grounded on the caio-sobreiro/dicomnet reference's client-side
// association handling.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dicomgateway/gatewayd/internal/dimse/assoc"
	"github.com/dicomgateway/gatewayd/internal/dimse/command"
	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/dimse/pdu"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/resilience"
)

// VerificationSOPClass is the Verification SOP Class UID used for C-ECHO.
const VerificationSOPClass = "1.2.840.10008.1.1"

// Destination is one configured DIMSE peer: its network address, AET, and
// the dial resilience policy (retry backoff, circuit breaker) applied when
// establishing an association with it. A zero Resilience falls back to
// resilience.DefaultResilienceConfig.
type Destination struct {
	AET        string
	Address    string // host:port
	Resilience resilience.ResilienceConfig
}

// SCU is the DIMSE service-class-user client: it dials, negotiates, and
// issues DIMSE requests against configured destination AETs.
type SCU struct {
	callingAET     string
	destinations   map[string]Destination
	connectTimeout time.Duration
	maxPDULength   uint32
	preferredTS    []string
	messageIDs     *MessageIDAllocator
	dialGuards     map[string]*dialGuard
}

// dialGuard is one destination's dial-time resilience policy, composed via
// resilience.ResilienceWrapper in the order it already applies
// (bulkhead → circuit breaker → retry → timeout, outermost to innermost):
//   - bulkhead caps how many associations may be mid-handshake with this
//     destination at once, so a slow or overloaded modality can't be piled
//     onto by every concurrent request fanning out to it;
//   - the circuit breaker opens after repeated AssociationRejected/network
//     outcomes so a misconfigured or unreachable peer stops being redialed
//     on every request;
//   - retry absorbs transient network failures with exponential backoff;
//   - timeout bounds the full dial-plus-negotiate round trip, not just the
//     raw TCP connect (which connectTimeout already bounds via net.Dialer).
type dialGuard struct {
	wrapper resilience.ResilienceWrapper
}

// NewSCU constructs an SCU identifying itself as callingAET, able to dial
// any of destinations (keyed by destination AET).
func NewSCU(callingAET string, destinations []Destination, connectTimeout time.Duration) *SCU {
	byAET := make(map[string]Destination, len(destinations))
	guards := make(map[string]*dialGuard, len(destinations))
	for _, d := range destinations {
		byAET[d.AET] = d
		cfg := d.Resilience
		if (cfg.Retry == resilience.RetryConfig{}) {
			cfg = resilience.DefaultResilienceConfig()
		}
		name := d.AET + "-dial"
		guards[d.AET] = &dialGuard{
			wrapper: resilience.NewResilienceWrapper(
				resilience.WithWrapperBulkhead(resilience.NewBulkhead(name, cfg.Bulkhead)),
				resilience.WithCircuitBreakerFactory(resilience.NewCircuitBreakerFactory(cfg.CircuitBreaker)),
				resilience.WithWrapperRetrier(resilience.NewRetrier(name, cfg.Retry, resilience.WithRetryableFunc(isDialRetryable))),
				resilience.WithWrapperTimeout(resilience.NewTimeout(name, cfg.Timeout.Default)),
			),
		}
	}
	return &SCU{
		callingAET:     callingAET,
		destinations:   byAET,
		connectTimeout: connectTimeout,
		maxPDULength:   pdu.MaxLength,
		preferredTS:    []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"},
		messageIDs:     NewMessageIDAllocator(),
		dialGuards:     guards,
	}
}

// isDialRetryable retries transport-level dial failures but never
// AssociationRejected or an already-open circuit breaker: a peer actively
// refusing the proposed presentation context will not start accepting it
// on redial, and a tripped breaker is by definition not worth redialing
// until its timeout elapses.
func isDialRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return errortaxonomy.KindOf(err) == errortaxonomy.Network
}

// association is one open connection to a destination with its negotiated
// presentation context.
type association struct {
	conn        net.Conn
	contextID   byte
	transferTS  string
	peerMaxPDU  uint32
}

// dial establishes an association with dest, applying dest's dialGuard
// (bulkhead, circuit breaker, retry, timeout).
func (s *SCU) dial(ctx context.Context, abstractSyntax string, dest Destination) (*association, error) {
	guard := s.dialGuards[dest.AET]
	if guard == nil {
		return s.connectOnce(ctx, abstractSyntax, dest)
	}

	var result *association
	err := guard.wrapper.Execute(ctx, dest.AET+"-dial", func(ctx context.Context) error {
		out, err := s.connectOnce(ctx, abstractSyntax, dest)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SCU) connectOnce(ctx context.Context, abstractSyntax string, dest Destination) (*association, error) {
	dialer := net.Dialer{Timeout: s.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dest.Address)
	if err != nil {
		return nil, errortaxonomy.Wrap(errortaxonomy.Network, fmt.Sprintf("failed to connect to %s", dest.Address), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	const contextID = 1
	rq := assoc.RequestParams{
		CalledAET:  dest.AET,
		CallingAET: s.callingAET,
		Contexts: []assoc.ProposedContext{
			{ID: contextID, AbstractSyntax: abstractSyntax, TransferSyntaxes: s.preferredTS},
		},
		MaxPDULength: s.maxPDULength,
	}

	if err := pdu.WritePDU(conn, pdu.TypeAssociateRQ, assoc.EncodeRQ(rq)); err != nil {
		conn.Close()
		return nil, errortaxonomy.Wrap(errortaxonomy.Network, "failed to send A-ASSOCIATE-RQ", err)
	}

	response, err := pdu.ReadPDU(conn)
	if err != nil {
		conn.Close()
		return nil, errortaxonomy.Wrap(errortaxonomy.Network, "failed to read association response", err)
	}

	switch response.Type {
	case pdu.TypeAssociateAC:
		ac, err := assoc.DecodeAC(response.Payload)
		if err != nil {
			conn.Close()
			return nil, errortaxonomy.Wrap(errortaxonomy.DimseUl, "malformed A-ASSOCIATE-AC", err)
		}
		var accepted *assoc.AcceptedContext
		for i := range ac.Contexts {
			if ac.Contexts[i].ID == contextID && ac.Contexts[i].Result == assoc.ResultAccepted {
				accepted = &ac.Contexts[i]
				break
			}
		}
		if accepted == nil {
			conn.Close()
			return nil, errortaxonomy.New(errortaxonomy.AssociationRejected, "peer did not accept the proposed presentation context")
		}
		return &association{
			conn:       conn,
			contextID:  contextID,
			transferTS: accepted.TransferSyntax,
			peerMaxPDU: ac.MaxPDULength,
		}, nil
	case pdu.TypeAssociateRJ:
		conn.Close()
		return nil, errortaxonomy.New(errortaxonomy.AssociationRejected, "peer rejected the association")
	default:
		conn.Close()
		return nil, errortaxonomy.Newf(errortaxonomy.DimseUl, "unexpected PDU type %s during association", response.Type)
	}
}

func (a *association) release() {
	_ = pdu.WritePDU(a.conn, pdu.TypeReleaseRQ, assoc.EncodeReleaseRQ())
	_, _ = pdu.ReadPDU(a.conn) // best-effort wait for A-RELEASE-RP
	a.conn.Close()
}

// writeCommand writes one DIMSE command (and optional dataset) as P-DATA-TF PDVs.
func (a *association) writeCommand(msg command.Message, dataset []byte) error {
	id := command.Encode(msg)
	body, err := dicomjson.ToJSON(id)
	if err != nil {
		return errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode command set", err)
	}

	pdvs := []pdu.PDV{{ContextID: a.contextID, IsCommand: true, IsLast: true, Fragment: body}}
	if dataset != nil {
		pdvs = append(pdvs, pdu.PDV{ContextID: a.contextID, IsCommand: false, IsLast: true, Fragment: dataset})
	}

	if err := pdu.WritePDU(a.conn, pdu.TypeDataTF, pdu.EncodePDVs(pdvs)); err != nil {
		return errortaxonomy.Wrap(errortaxonomy.Network, "failed to send P-DATA-TF", err)
	}
	return nil
}

// readResponse reassembles one full DIMSE response message (command plus
// any attached dataset) from the peer.
func (a *association) readResponse() (command.Message, []byte, error) {
	reassembler := pdu.NewReassembler(a.contextID)
	for !reassembler.Done() {
		response, err := pdu.ReadPDU(a.conn)
		if err != nil {
			return command.Message{}, nil, errortaxonomy.Wrap(errortaxonomy.Network, "failed to read response PDU", err)
		}
		if response.Type != pdu.TypeDataTF {
			return command.Message{}, nil, errortaxonomy.Newf(errortaxonomy.DimseUl, "unexpected PDU type %s awaiting response", response.Type)
		}
		respPDVs, err := pdu.DecodePDVs(response.Payload)
		if err != nil {
			return command.Message{}, nil, errortaxonomy.Wrap(errortaxonomy.DimseUl, "malformed P-DATA-TF", err)
		}
		for _, pdv := range respPDVs {
			if err := reassembler.Feed(pdv); err != nil {
				return command.Message{}, nil, errortaxonomy.Wrap(errortaxonomy.DimseUl, "PDV reassembly failed", err)
			}
		}
	}

	respID, err := dicomjson.FromJSON(reassembler.Command())
	if err != nil {
		return command.Message{}, nil, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "malformed response command set", err)
	}
	respMsg, ferr := command.Decode(respID)
	if ferr != nil {
		return command.Message{}, nil, ferr
	}
	respDataset, _ := reassembler.Dataset()
	return respMsg, respDataset, nil
}

// sendCommand is the single-exchange shortcut used by C-ECHO/C-STORE: write
// one request, read exactly one response.
func (a *association) sendCommand(msg command.Message, dataset []byte) (command.Message, []byte, error) {
	if err := a.writeCommand(msg, dataset); err != nil {
		return command.Message{}, nil, err
	}
	return a.readResponse()
}

// Echo issues a C-ECHO against destinationAET. It returns nil on a
// Success status and a typed error otherwise.
func (s *SCU) Echo(ctx context.Context, destinationAET string) error {
	dest, ok := s.destinations[destinationAET]
	if !ok {
		return errortaxonomy.Newf(errortaxonomy.Config, "unknown destination AET %q", destinationAET)
	}

	assocConn, err := s.dial(ctx, VerificationSOPClass, dest)
	if err != nil {
		return err
	}
	defer assocConn.release()

	req := command.Message{
		CommandField:        command.CEchoRQ,
		MessageID:           s.messageIDs.Next(),
		AffectedSOPClassUID: VerificationSOPClass,
		DataSetType:         0x0101, // no dataset
	}

	resp, _, err := assocConn.sendCommand(req, nil)
	if err != nil {
		return err
	}
	if resp.Status.IsFailure() {
		return errortaxonomy.Newf(errortaxonomy.OperationFailed, "C-ECHO failed with status 0x%04x", uint16(resp.Status))
	}
	return nil
}

// Find issues a C-FIND against destinationAET at the given SOP class (study
// or patient root query/retrieve): the query is sent once, then every
// C-FIND-RSP(Pending) the peer streams back carries one matching identifier,
// until a final, dataset-less C-FIND-RSP(Success) ends the exchange.
func (s *SCU) Find(ctx context.Context, destinationAET, sopClassUID string, query dicomjson.Identifier) ([]dicomjson.Identifier, error) {
	dest, ok := s.destinations[destinationAET]
	if !ok {
		return nil, errortaxonomy.Newf(errortaxonomy.Config, "unknown destination AET %q", destinationAET)
	}

	assocConn, err := s.dial(ctx, sopClassUID, dest)
	if err != nil {
		return nil, err
	}
	defer assocConn.release()

	queryBytes, jsonErr := dicomjson.ToJSON(query)
	if jsonErr != nil {
		return nil, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode C-FIND query keys", jsonErr)
	}

	req := command.Message{
		CommandField:        command.CFindRQ,
		MessageID:           s.messageIDs.Next(),
		AffectedSOPClassUID: sopClassUID,
		DataSetType:         0, // dataset present
	}
	if err := assocConn.writeCommand(req, queryBytes); err != nil {
		return nil, err
	}

	var results []dicomjson.Identifier
	for {
		resp, dataset, err := assocConn.readResponse()
		if err != nil {
			return nil, err
		}
		if resp.Status.IsFailure() {
			return nil, errortaxonomy.Newf(errortaxonomy.OperationFailed, "C-FIND failed with status 0x%04x", uint16(resp.Status))
		}
		if resp.Status == command.StatusPending && resp.HasDataset() {
			matchID, jsonErr := dicomjson.FromJSON(dataset)
			if jsonErr != nil {
				return nil, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "malformed C-FIND match identifier", jsonErr)
			}
			results = append(results, matchID)
		}
		if resp.Status != command.StatusPending {
			break
		}
	}
	return results, nil
}

// Move issues a C-MOVE against destinationAET, asking it to push matching
// instances to moveDestinationAET via its own Storage SCU role. The actual
// instances never cross this association: Move only relays the
// sub-operation progress counts the peer reports in each C-MOVE-RSP,
// returning the final tally once a non-Pending status ends the exchange.
func (s *SCU) Move(ctx context.Context, destinationAET, moveDestinationAET, sopClassUID string, query dicomjson.Identifier) (command.Counts, error) {
	dest, ok := s.destinations[destinationAET]
	if !ok {
		return command.Counts{}, errortaxonomy.Newf(errortaxonomy.Config, "unknown destination AET %q", destinationAET)
	}

	assocConn, err := s.dial(ctx, sopClassUID, dest)
	if err != nil {
		return command.Counts{}, err
	}
	defer assocConn.release()

	queryBytes, jsonErr := dicomjson.ToJSON(query)
	if jsonErr != nil {
		return command.Counts{}, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode C-MOVE query keys", jsonErr)
	}

	req := command.Message{
		CommandField:        command.CMoveRQ,
		MessageID:           s.messageIDs.Next(),
		AffectedSOPClassUID: sopClassUID,
		MoveDestinationAET:  moveDestinationAET,
		DataSetType:         0, // dataset present
	}
	if err := assocConn.writeCommand(req, queryBytes); err != nil {
		return command.Counts{}, err
	}

	var counts command.Counts
	for {
		resp, _, err := assocConn.readResponse()
		if err != nil {
			return counts, err
		}
		counts = resp.SubOperations
		if resp.Status.IsFailure() {
			return counts, errortaxonomy.Newf(errortaxonomy.OperationFailed, "C-MOVE failed with status 0x%04x", uint16(resp.Status))
		}
		if resp.Status != command.StatusPending {
			break
		}
	}
	return counts, nil
}

// InstanceHandler receives one C-GET sub-operation's pushed instance.
type InstanceHandler func(sopClassUID, sopInstanceUID string, dataset []byte) *errortaxonomy.Error

// Get issues a C-GET against destinationAET. Unlike C-MOVE, C-GET's matched
// instances are pushed back as C-STORE-RQ sub-operations on this same
// association; Get answers each with a C-STORE-RSP and hands the dataset to
// onInstance, returning the final sub-operation tally once the peer's
// C-GET-RSP reports a non-Pending status.
func (s *SCU) Get(ctx context.Context, destinationAET, sopClassUID string, query dicomjson.Identifier, onInstance InstanceHandler) (command.Counts, error) {
	dest, ok := s.destinations[destinationAET]
	if !ok {
		return command.Counts{}, errortaxonomy.Newf(errortaxonomy.Config, "unknown destination AET %q", destinationAET)
	}

	assocConn, err := s.dial(ctx, sopClassUID, dest)
	if err != nil {
		return command.Counts{}, err
	}
	defer assocConn.release()

	queryBytes, jsonErr := dicomjson.ToJSON(query)
	if jsonErr != nil {
		return command.Counts{}, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode C-GET query keys", jsonErr)
	}

	req := command.Message{
		CommandField:        command.CGetRQ,
		MessageID:           s.messageIDs.Next(),
		AffectedSOPClassUID: sopClassUID,
		DataSetType:         0, // dataset present
	}
	if err := assocConn.writeCommand(req, queryBytes); err != nil {
		return command.Counts{}, err
	}

	var counts command.Counts
	for {
		msg, dataset, err := assocConn.readResponse()
		if err != nil {
			return counts, err
		}

		switch msg.CommandField {
		case command.CStoreRQ:
			ferr := onInstance(msg.AffectedSOPClassUID, msg.AffectedSOPInstanceUID, dataset)
			status := command.StatusSuccess
			if ferr != nil {
				status = command.StatusStoreOutOfResources
			}
			rsp := command.Message{
				CommandField:              command.CStoreRSP,
				MessageID:                 s.messageIDs.Next(),
				MessageIDBeingRespondedTo: msg.MessageID,
				AffectedSOPClassUID:       msg.AffectedSOPClassUID,
				AffectedSOPInstanceUID:    msg.AffectedSOPInstanceUID,
				Status:                    status,
				DataSetType:               0x0101, // no dataset
			}
			if err := assocConn.writeCommand(rsp, nil); err != nil {
				return counts, err
			}
		case command.CGetRSP:
			counts = msg.SubOperations
			if msg.Status.IsFailure() {
				return counts, errortaxonomy.Newf(errortaxonomy.OperationFailed, "C-GET failed with status 0x%04x", uint16(msg.Status))
			}
			if msg.Status != command.StatusPending {
				return counts, nil
			}
		default:
			return counts, errortaxonomy.Newf(errortaxonomy.DimseUl, "unexpected command field %s during C-GET", msg.CommandField)
		}
	}
}

// Store issues a C-STORE of dataset (already DICOM-JSON-encoded) against
// destinationAET under sopClassUID/sopInstanceUID.
func (s *SCU) Store(ctx context.Context, destinationAET, sopClassUID, sopInstanceUID string, dataset []byte) error {
	dest, ok := s.destinations[destinationAET]
	if !ok {
		return errortaxonomy.Newf(errortaxonomy.Config, "unknown destination AET %q", destinationAET)
	}

	assocConn, err := s.dial(ctx, sopClassUID, dest)
	if err != nil {
		return err
	}
	defer assocConn.release()

	req := command.Message{
		CommandField:           command.CStoreRQ,
		MessageID:              s.messageIDs.Next(),
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		DataSetType:            0, // dataset present
	}

	resp, _, err := assocConn.sendCommand(req, dataset)
	if err != nil {
		return err
	}
	if resp.Status.IsFailure() {
		return errortaxonomy.Newf(errortaxonomy.OperationFailed, "C-STORE failed with status 0x%04x", uint16(resp.Status))
	}
	return nil
}
