package backends

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/storage"
)

// JMIX serves GET /api/jmix/{id}/manifest and GET /api/jmix/{id}, reading
// pre-materialized manifest+payload files from storage.path/jmix-store/<id>/.
// The zip is built in memory on each GET /api/jmix/{id}; no <id>.zip is
// written to storage. archive/zip (stdlib) is used rather than an ecosystem
// zip library: the bundle is a flat manifest+payload set with no need for
// streaming or compression tuning (see DESIGN.md).
type JMIX struct {
	name    string
	storage storage.Backend
}

// NewJMIX constructs a JMIX backend reading bundles from storage.
func NewJMIX(name string, backend storage.Backend) *JMIX {
	return &JMIX{name: name, storage: backend}
}

func (j *JMIX) Name() string { return j.name }

const jmixPrefix = "/api/jmix/"

// Dispatch serves GET /api/jmix/* bundle retrieval, and additionally
// materializes a one-file bundle for an OperationStoreSCP envelope (an
// instance the DIMSE Storage SCP just received and the pipeline is
// forwarding onward). Any other URI/operation returns Skipped, letting the
// pipeline try the next configured backend.
func (j *JMIX) Dispatch(ctx context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	if target.Metadata[MetaOperation] == OperationStoreSCP {
		return j.ingestStoreSCP(ctx, env, target.Metadata[MetaSOPInstanceUID])
	}

	uri := target.URI
	if !strings.HasPrefix(uri, jmixPrefix) {
		return envelope.Skipped, nil
	}
	rest := strings.TrimPrefix(uri, jmixPrefix)

	if id, ok := strings.CutSuffix(rest, "/manifest"); ok {
		return j.serveManifest(ctx, env, id)
	}
	return j.serveBundle(ctx, env, rest)
}

// ingestStoreSCP writes the received instance and a single-file manifest
// into jmix-store/<sopInstanceUID>/, the same layout serveBundle/serveManifest
// read back from.
func (j *JMIX) ingestStoreSCP(ctx context.Context, env *envelope.Envelope, sopInstanceUID string) (envelope.Outcome, *errortaxonomy.Error) {
	if sopInstanceUID == "" {
		return envelope.Skipped, nil
	}
	dir := j.bundleDir(sopInstanceUID)
	const payloadName = "instance.dcm"

	manifest, err := json.Marshal(jmixManifest{ID: sopInstanceUID, Files: []string{payloadName}})
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode jmix manifest", err)
	}
	if _, err := j.storage.WriteFile(ctx, dir+"/manifest.json", manifest); err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to write jmix manifest", err)
	}
	if _, err := j.storage.WriteFile(ctx, dir+"/"+payloadName, env.OriginalPayload().Bytes); err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to write jmix payload", err)
	}
	return envelope.Continue, nil
}

type jmixManifest struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
}

func (j *JMIX) bundleDir(id string) string {
	return "jmix-store/" + id
}

func (j *JMIX) serveManifest(ctx context.Context, env *envelope.Envelope, id string) (envelope.Outcome, *errortaxonomy.Error) {
	data, err := j.storage.ReadFile(ctx, j.bundleDir(id)+"/manifest.json")
	if err != nil {
		domainErr, ok := errortaxonomy.As(err)
		if ok {
			return envelope.Failed, domainErr
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to read jmix manifest", err)
	}

	var manifest jmixManifest
	if jsonErr := json.Unmarshal(data, &manifest); jsonErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "corrupt jmix manifest", jsonErr)
	}

	env.SetShortCircuit(&envelope.Response{
		Status:      200,
		ContentType: "application/json",
		Body:        data,
	})
	return envelope.Continue, nil
}

func (j *JMIX) serveBundle(ctx context.Context, env *envelope.Envelope, id string) (envelope.Outcome, *errortaxonomy.Error) {
	manifestData, err := j.storage.ReadFile(ctx, j.bundleDir(id)+"/manifest.json")
	if err != nil {
		domainErr, ok := errortaxonomy.As(err)
		if ok {
			return envelope.Failed, domainErr
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to read jmix manifest", err)
	}
	var manifest jmixManifest
	if jsonErr := json.Unmarshal(manifestData, &manifest); jsonErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "corrupt jmix manifest", jsonErr)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifestEntry, zerr := zw.Create("manifest.json")
	if zerr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to create zip entry", zerr)
	}
	if _, zerr := manifestEntry.Write(manifestData); zerr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to write zip entry", zerr)
	}

	for _, name := range manifest.Files {
		fileData, err := j.storage.ReadFile(ctx, j.bundleDir(id)+"/"+name)
		if err != nil {
			domainErr, ok := errortaxonomy.As(err)
			if ok {
				return envelope.Failed, domainErr
			}
			return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to read jmix payload file", err)
		}
		entry, zerr := zw.Create(name)
		if zerr != nil {
			return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to create zip entry", zerr)
		}
		if _, zerr := entry.Write(fileData); zerr != nil {
			return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to write zip entry", zerr)
		}
	}

	if zerr := zw.Close(); zerr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Storage, "failed to finalize jmix zip", zerr)
	}

	env.SetShortCircuit(&envelope.Response{
		Status:      200,
		ContentType: "application/zip",
		Body:        buf.Bytes(),
	})
	return envelope.Continue, nil
}

var _ envelope.Backend = (*JMIX)(nil)
