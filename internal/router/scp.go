package router

import (
	"context"
	"fmt"

	"github.com/dicomgateway/gatewayd/internal/backends"
	"github.com/dicomgateway/gatewayd/internal/config"
	"github.com/dicomgateway/gatewayd/internal/dimse/client"
	"github.com/dicomgateway/gatewayd/internal/dimse/scp"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// commonStorageSOPClasses are the Storage-service SOP classes this
// gateway's Storage SCP accepts in addition to Verification, covering the
// modalities a DICOMweb archive ingest path commonly sees. A production
// deployment that needs a wider set configures additional endpoints rather
// than this list growing unbounded.
var commonStorageSOPClasses = []string{
	"1.2.840.10008.5.1.4.1.1.7",     // Secondary Capture Image Storage
	"1.2.840.10008.5.1.4.1.1.2",     // CT Image Storage
	"1.2.840.10008.5.1.4.1.1.4",     // MR Image Storage
	"1.2.840.10008.5.1.4.1.1.6.1",   // Ultrasound Image Storage
	"1.2.840.10008.5.1.4.1.1.1",     // Computed Radiography Image Storage
	"1.2.840.10008.5.1.4.1.1.1.1",   // Digital X-Ray Image Storage
}

// ensureDimseSCPStarted builds the scp.Handler for ep and registers it with
// deps.SCPRegistry under a key derived from the endpoint's bind address,
// port, and name (EnsureStarted is an idempotent no-op if already running).
func ensureDimseSCPStarted(ctx context.Context, cfg *config.Config, epName string, ep config.EndpointConfig, pipeline *envelope.Pipeline, deps Deps) error {
	svc, ok := cfg.Services[ep.Service]
	if ep.Service != "" && !ok {
		return fmt.Errorf("endpoint references unknown service %q", ep.Service)
	}

	supported := map[string]bool{}
	if svc.EnableEcho {
		supported[client.VerificationSOPClass] = true
	}
	if svc.EnableStore {
		for _, uid := range commonStorageSOPClasses {
			supported[uid] = true
		}
	}

	handler := &scp.Handler{
		CalledAET:                 ep.LocalAET,
		SupportedAbstractSyntaxes: supported,
		PreferredTransferSyntaxes: ep.TransferSyntaxes,
		Storage:                   deps.Storage,
		OnStore:                   storeHandlerFor(pipeline, deps),
		Logger:                    deps.logger(),
	}

	key := scp.Key{LocalAET: ep.LocalAET, BindAddr: ep.BindAddr, Port: ep.Port, EndpointName: epName}
	return deps.SCPRegistry.EnsureStarted(ctx, scp.Spec{
		Key:             key,
		MaxAssociations: cfg.Proxy.MaxConcurrentAssociations,
		Handle:          handler.Handle,
	})
}

// storeHandlerFor persists an inbound C-STORE dataset via deps.Storage,
// keyed by SOP Instance UID, then re-dispatches it through the endpoint's
// configured pipeline as a synthetic DIMSE-protocol envelope so backends
// such as JMIX or FHIR egress can forward the instance onward. A backend
// that returns Skipped (none of them recognize dimse.operation=store-scp
// metadata) is not an error: the instance is still persisted locally.
func storeHandlerFor(pipeline *envelope.Pipeline, deps Deps) scp.StoreHandler {
	return func(ctx context.Context, sopClassUID, sopInstanceUID string, dataset []byte) *errortaxonomy.Error {
		rel := "received/" + sopInstanceUID + ".dcm"
		if _, err := deps.Storage.WriteFile(ctx, rel, dataset); err != nil {
			return errortaxonomy.Wrap(errortaxonomy.Storage, "failed to persist received instance", err)
		}
		deps.logger().Info("stored inbound DIMSE instance",
			"pipeline", pipeline.Name, "sop_class_uid", sopClassUID, "sop_instance_uid", sopInstanceUID)

		env := envelope.New(envelope.Details{
			Method: "STORE-SCP",
			URI:    rel,
			Metadata: map[string]string{
				backends.MetaOperation:      backends.OperationStoreSCP,
				backends.MetaSOPClassUID:    sopClassUID,
				backends.MetaSOPInstanceUID: sopInstanceUID,
			},
		}, envelope.Payload{Protocol: envelope.ProtocolDIMSE, Bytes: dataset})

		if _, ferr := pipeline.Execute(ctx, env); ferr != nil && ferr.Kind != errortaxonomy.NotFound {
			return ferr
		}
		return nil
	}
}
