package backends

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedJMIXBundle(t *testing.T, fs *storage.Filesystem, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := fs.WriteFile(ctx, "jmix-store/"+id+"/manifest.json", []byte(`{"id":"`+id+`","files":["payload.dcm"]}`))
	require.NoError(t, err)
	_, err = fs.WriteFile(ctx, "jmix-store/"+id+"/payload.dcm", []byte("dataset-bytes"))
	require.NoError(t, err)
}

func TestJMIX_SkipsNonJMIXURIs(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{Method: "GET", URI: "/studies/1", Headers: http.Header{}}, envelope.Payload{})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Skipped, outcome)
}

func TestJMIX_ServesManifest(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	seedJMIXBundle(t, fs, "bundle-1")
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{Method: "GET", URI: "/api/jmix/bundle-1/manifest", Headers: http.Header{}}, envelope.Payload{})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	resp, ok := env.ShortCircuit()
	require.True(t, ok)
	assert.Contains(t, string(resp.Body), "bundle-1")
}

func TestJMIX_ServesZipBundle(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	seedJMIXBundle(t, fs, "bundle-2")
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{Method: "GET", URI: "/api/jmix/bundle-2", Headers: http.Header{}}, envelope.Payload{})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	resp, ok := env.ShortCircuit()
	require.True(t, ok)
	assert.Equal(t, "application/zip", resp.ContentType)

	zr, err := zip.NewReader(bytes.NewReader(resp.Body), int64(len(resp.Body)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "manifest.json")
	assert.Contains(t, names, "payload.dcm")
}

func TestJMIX_MissingBundleFails(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{Method: "GET", URI: "/api/jmix/missing/manifest", Headers: http.Header{}}, envelope.Payload{})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.NotNil(t, ferr)
	assert.Equal(t, envelope.Failed, outcome)
}

func TestJMIX_IngestsStoreSCPEnvelope(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{
		Method: "STORE-SCP",
		URI:    "received/1.2.3.dcm",
		Metadata: map[string]string{
			MetaOperation:      OperationStoreSCP,
			MetaSOPInstanceUID: "1.2.3",
		},
	}, envelope.Payload{Protocol: envelope.ProtocolDIMSE, Bytes: []byte("forwarded-dataset")})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	manifest, err := fs.ReadFile(context.Background(), "jmix-store/1.2.3/manifest.json")
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "1.2.3")

	payload, err := fs.ReadFile(context.Background(), "jmix-store/1.2.3/instance.dcm")
	require.NoError(t, err)
	assert.Equal(t, "forwarded-dataset", string(payload))
}

func TestJMIX_SkipsStoreSCPEnvelopeWithoutInstanceUID(t *testing.T) {
	fs := storage.NewFilesystem(t.TempDir())
	backend := NewJMIX("jmix-main", fs)
	env := envelope.New(envelope.Details{
		Method:   "STORE-SCP",
		Metadata: map[string]string{MetaOperation: OperationStoreSCP},
	}, envelope.Payload{Protocol: envelope.ProtocolDIMSE})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Skipped, outcome)
}
