package backends

import (
	"context"
	"encoding/json"

	"github.com/dicomgateway/gatewayd/internal/dimse/client"
	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/storage"
	"github.com/google/uuid"
)

// Metadata keys the bridge middleware sets on target_details before
// dispatching to a DIMSE backend.
const (
	MetaOperation      = "dimse.operation"
	MetaDestinationAET = "dimse.destination_aet"
	MetaSOPClassUID    = "dimse.sop_class_uid"
	MetaSOPInstanceUID = "dimse.sop_instance_uid"
)

const (
	OperationEcho  = "echo"
	OperationFind  = "find"
	OperationStore = "store"
	OperationGet   = "get"

	// OperationStoreSCP tags a synthetic envelope the DIMSE Storage SCP
	// dispatches after persisting a received C-STORE instance, letting
	// egress backends (e.g. JMIX) forward it onward. internal/backends.DIMSE
	// itself does not handle it: a Storage SCP receive is not a new
	// outbound DIMSE association.
	OperationStoreSCP = "store-scp"
)

// MetaResponseFormat selects how dispatchGet renders the retrieved
// instance(s): a DICOM-JSON identifier array (QIDO-shaped metadata), or a
// single Part-10 file stream (WADO single-instance retrieval).
const MetaResponseFormat = "dimse.response_format"

const (
	ResponseFormatIdentifiers = "identifiers"
	ResponseFormatPart10      = "part10"
)

// DIMSE is the SCU-backed backend: it translates the envelope's dimse.*
// metadata (set by the bridge middleware) into a C-ECHO/C-FIND/C-GET/C-STORE
// request and renders the DIMSE result as DICOM-JSON or Part-10 bytes.
type DIMSE struct {
	name    string
	scu     *client.SCU
	storage storage.Backend
}

// NewDIMSE constructs a DIMSE backend bound to scu. storageBackend persists
// C-GET's retrieved instances under dimse/<uuid>/<sop-instance-uid>.dcm; a
// nil storageBackend skips persistence (the retrieved bytes still flow into
// the HTTP response).
func NewDIMSE(name string, scu *client.SCU, storageBackend storage.Backend) *DIMSE {
	return &DIMSE{name: name, scu: scu, storage: storageBackend}
}

func (d *DIMSE) Name() string { return d.name }

// Dispatch returns Skipped when the envelope carries no dimse.operation
// metadata, letting the pipeline try the next configured backend.
func (d *DIMSE) Dispatch(ctx context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	operation, ok := target.Metadata[MetaOperation]
	if !ok {
		return envelope.Skipped, nil
	}
	destinationAET := target.Metadata[MetaDestinationAET]

	switch operation {
	case OperationEcho:
		return d.dispatchEcho(ctx, env, destinationAET)
	case OperationFind:
		return d.dispatchFind(ctx, env, destinationAET, target.Metadata[MetaSOPClassUID])
	case OperationStore:
		return d.dispatchStore(ctx, env, destinationAET, target.Metadata[MetaSOPClassUID], target.Metadata[MetaSOPInstanceUID])
	case OperationGet:
		return d.dispatchGet(ctx, env, destinationAET, target.Metadata[MetaSOPClassUID], target.Metadata[MetaResponseFormat])
	case OperationStoreSCP:
		// A Storage SCP receive, not a new outbound association; let the
		// next configured backend (e.g. JMIX) handle the forwarded instance.
		return envelope.Skipped, nil
	default:
		return envelope.Failed, errortaxonomy.Newf(errortaxonomy.NotSupported, "unsupported dimse operation %q", operation)
	}
}

func (d *DIMSE) dispatchEcho(ctx context.Context, env *envelope.Envelope, destinationAET string) (envelope.Outcome, *errortaxonomy.Error) {
	err := d.scu.Echo(ctx, destinationAET)
	body, marshalErr := json.Marshal(map[string]bool{"success": err == nil})
	if marshalErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to render echo result", marshalErr)
	}
	env.SetShortCircuit(&envelope.Response{Status: 200, ContentType: "application/json", Body: body})
	return envelope.Continue, nil
}

func (d *DIMSE) dispatchFind(ctx context.Context, env *envelope.Envelope, destinationAET, sopClassUID string) (envelope.Outcome, *errortaxonomy.Error) {
	queryBytes := env.OriginalPayload().Bytes
	if normalized, ok := env.NormalizedData(); ok {
		queryBytes = normalized
	}
	query, err := dicomjson.FromJSON(queryBytes)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "malformed C-FIND query keys", err)
	}

	matches, ferr := d.scu.Find(ctx, destinationAET, sopClassUID, query)
	if ferr != nil {
		domainErr, ok := errortaxonomy.As(ferr)
		if ok {
			return envelope.Failed, domainErr
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Network, "C-FIND failed", ferr)
	}

	body, marshalErr := json.Marshal(matches)
	if marshalErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to render C-FIND matches", marshalErr)
	}
	env.SetShortCircuit(&envelope.Response{Status: 200, ContentType: "application/dicom+json", Body: body})
	return envelope.Continue, nil
}

// retrievedInstance is one C-GET sub-operation's pushed dataset, collected
// before the final response is rendered in the format the caller asked for.
type retrievedInstance struct {
	sopClassUID    string
	sopInstanceUID string
	dataset        []byte
}

func (d *DIMSE) dispatchGet(ctx context.Context, env *envelope.Envelope, destinationAET, sopClassUID, responseFormat string) (envelope.Outcome, *errortaxonomy.Error) {
	queryBytes := env.OriginalPayload().Bytes
	if normalized, ok := env.NormalizedData(); ok {
		queryBytes = normalized
	}
	query, err := dicomjson.FromJSON(queryBytes)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "malformed C-GET query keys", err)
	}

	var instances []retrievedInstance
	onInstance := func(instSOPClassUID, instSOPInstanceUID string, dataset []byte) *errortaxonomy.Error {
		if d.storage != nil {
			rel := "dimse/" + uuid.NewString() + "/" + instSOPInstanceUID + ".dcm"
			if _, werr := d.storage.WriteFile(ctx, rel, dataset); werr != nil {
				return errortaxonomy.Wrap(errortaxonomy.Storage, "failed to persist retrieved instance", werr)
			}
		}
		instances = append(instances, retrievedInstance{sopClassUID: instSOPClassUID, sopInstanceUID: instSOPInstanceUID, dataset: dataset})
		return nil
	}

	if _, ferr := d.scu.Get(ctx, destinationAET, sopClassUID, query, onInstance); ferr != nil {
		domainErr, ok := errortaxonomy.As(ferr)
		if ok {
			return envelope.Failed, domainErr
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Network, "C-GET failed", ferr)
	}

	if responseFormat == ResponseFormatPart10 {
		if len(instances) == 0 {
			return envelope.Failed, errortaxonomy.New(errortaxonomy.NotFound, "C-GET matched no instance")
		}
		inst := instances[0]
		body := dicomjson.WritePart10(inst.sopClassUID, inst.sopInstanceUID, inst.dataset)
		env.SetShortCircuit(&envelope.Response{Status: 200, ContentType: "application/dicom", Body: body})
		return envelope.Continue, nil
	}

	identifiers := make([]dicomjson.Identifier, 0, len(instances))
	for _, inst := range instances {
		id, idErr := dicomjson.FromJSON(inst.dataset)
		if idErr != nil {
			return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "malformed retrieved dataset", idErr)
		}
		identifiers = append(identifiers, id)
	}
	body, marshalErr := json.Marshal(identifiers)
	if marshalErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to render C-GET matches", marshalErr)
	}
	env.SetShortCircuit(&envelope.Response{Status: 200, ContentType: "application/dicom+json", Body: body})
	return envelope.Continue, nil
}

func (d *DIMSE) dispatchStore(ctx context.Context, env *envelope.Envelope, destinationAET, sopClassUID, sopInstanceUID string) (envelope.Outcome, *errortaxonomy.Error) {
	payload := env.OriginalPayload()
	if err := d.scu.Store(ctx, destinationAET, sopClassUID, sopInstanceUID, payload.Bytes); err != nil {
		domainErr, ok := errortaxonomy.As(err)
		if ok {
			return envelope.Failed, domainErr
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Network, "C-STORE failed", err)
	}
	env.SetShortCircuit(&envelope.Response{Status: 200, ContentType: "application/json", Body: []byte(`{"success":true}`)})
	return envelope.Continue, nil
}

var _ envelope.Backend = (*DIMSE)(nil)
