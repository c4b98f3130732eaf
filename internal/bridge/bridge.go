// Package bridge implements the DICOMweb-to-DIMSE translation middleware:
// matching QIDO/WADO path templates, mapping query parameters into a
// DICOM-JSON identifier with inferred match types, and setting the
// dimse.* target metadata a DIMSE backend (internal/backends.DIMSE)
// dispatches on.
package bridge

import (
	"context"
	"regexp"
	"strings"

	"github.com/dicomgateway/gatewayd/internal/backends"
	"github.com/dicomgateway/gatewayd/internal/dimse/command"
	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// MatchType is the inferred QIDO query-parameter match kind. buildQuery
// computes one per query key; find does not record them on the envelope,
// so backends receive only the identifier.
type MatchType string

const (
	MatchExact    MatchType = "EXACT"
	MatchWildcard MatchType = "WILDCARD"
	MatchRange    MatchType = "RANGE"
	MatchList     MatchType = "LIST"
)

// InferMatchType classifies one QIDO query-parameter value: trailing "*"
// => WILDCARD, a "-" separator => RANGE, comma-separated => LIST,
// otherwise EXACT.
func InferMatchType(value string) MatchType {
	switch {
	case strings.HasSuffix(value, "*"):
		return MatchWildcard
	case strings.Contains(value, ","):
		return MatchList
	case strings.Contains(value, "-"):
		return MatchRange
	default:
		return MatchExact
	}
}

var (
	studiesPattern         = regexp.MustCompile(`^/studies$`)
	seriesPattern          = regexp.MustCompile(`^/studies/([^/]+)/series$`)
	instancesPattern       = regexp.MustCompile(`^/studies/([^/]+)/series/([^/]+)/instances$`)
	metadataPattern        = regexp.MustCompile(`^/studies/([^/]+)/metadata$`)
	instancePattern        = regexp.MustCompile(`^/studies/([^/]+)/series/([^/]+)/instances/([^/]+)$`)
	framePattern           = regexp.MustCompile(`^/studies/([^/]+)/series/([^/]+)/instances/([^/]+)/frames/(\d+)$`)
)

// studyUIDTag/seriesUIDTag/sopInstanceUIDTag are the DICOM-JSON tags QIDO
// path parameters are pinned onto.
const (
	studyUIDTag       = "0020000D"
	seriesUIDTag      = "0020000E"
	sopInstanceUIDTag = "00080018"
	sopClassUIDTag    = "00080016"
)

// Middleware translates DICOMweb requests into DIMSE operations. A request
// whose path matches no DICOMweb template passes through unmodified
// (a short-circuit rule despite the name: it is a pass, not a stop).
type Middleware struct {
	DestinationAET     string
	StudyRootSOPClass  string // Study Root Query/Retrieve - FIND
	StorageSOPClass    string
}

func (m *Middleware) Name() string { return "dicomweb-dimse-bridge" }

// HandleIncoming matches the request path against the DICOMweb templates
// and, on a match, rewrites target_details with the dimse.* metadata and a
// DICOM-JSON query/dataset payload that internal/backends.DIMSE dispatches.
func (m *Middleware) HandleIncoming(_ context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	path := target.URI
	method := target.Method

	switch {
	case method == "GET" && studiesPattern.MatchString(path):
		return m.find(env, command.LevelStudy, nil)
	case method == "GET" && seriesPattern.MatchString(path):
		match := seriesPattern.FindStringSubmatch(path)
		return m.find(env, command.LevelSeries, map[string]string{studyUIDTag: match[1]})
	case method == "GET" && instancesPattern.MatchString(path):
		match := instancesPattern.FindStringSubmatch(path)
		return m.find(env, command.LevelImage, map[string]string{studyUIDTag: match[1], seriesUIDTag: match[2]})
	case method == "GET" && metadataPattern.MatchString(path):
		match := metadataPattern.FindStringSubmatch(path)
		return m.get(env, map[string]string{studyUIDTag: match[1]}, backends.ResponseFormatIdentifiers)
	case method == "GET" && instancePattern.MatchString(path):
		match := instancePattern.FindStringSubmatch(path)
		return m.get(env, map[string]string{studyUIDTag: match[1], seriesUIDTag: match[2], sopInstanceUIDTag: match[3]}, backends.ResponseFormatPart10)
	case method == "GET" && framePattern.MatchString(path):
		// The frame route issues the same C-GET as the single-instance
		// route and returns the whole instance as Part-10. The frame index
		// (match[4]) is not used: frame n is not extracted from the pixel
		// data.
		match := framePattern.FindStringSubmatch(path)
		return m.get(env, map[string]string{studyUIDTag: match[1], seriesUIDTag: match[2], sopInstanceUIDTag: match[3]}, backends.ResponseFormatPart10)
	case method == "POST" && studiesPattern.MatchString(path):
		return m.store(env)
	default:
		return envelope.Continue, nil
	}
}

// HandleOutgoing is a no-op: response shaping happens at the backend, which
// already knows the operation it served.
func (m *Middleware) HandleOutgoing(_ context.Context, _ *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	return envelope.Continue, nil
}

func (m *Middleware) find(env *envelope.Envelope, level command.QueryLevel, fixed map[string]string) (envelope.Outcome, *errortaxonomy.Error) {
	id, queryMeta := m.buildQuery(env, level, fixed)

	body, err := dicomjson.ToJSON(id)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode QIDO query", err)
	}

	target := env.TargetDetails()
	if target.Metadata == nil {
		target.Metadata = map[string]string{}
	}
	target.Metadata[backends.MetaOperation] = backends.OperationFind
	target.Metadata[backends.MetaDestinationAET] = m.DestinationAET
	target.Metadata[backends.MetaSOPClassUID] = m.StudyRootSOPClass
	env.SetTargetDetails(target)
	env.SetNormalizedData(body)
	_ = queryMeta // match types are not attached to the envelope

	return envelope.Continue, nil
}

// fixedFind is find with every key fixed to EXACT match (single-instance
// WADO paths identify exactly one resource, never a query).
func (m *Middleware) fixedFind(env *envelope.Envelope, fixed map[string]string) (envelope.Outcome, *errortaxonomy.Error) {
	id := dicomjson.Identifier{}
	for tag, value := range fixed {
		id[tag] = dicomjson.Element{VR: "UI", Value: []any{value}}
	}
	body, err := dicomjson.ToJSON(id)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode WADO identifier", err)
	}

	target := env.TargetDetails()
	if target.Metadata == nil {
		target.Metadata = map[string]string{}
	}
	target.Metadata[backends.MetaOperation] = backends.OperationFind
	target.Metadata[backends.MetaDestinationAET] = m.DestinationAET
	target.Metadata[backends.MetaSOPClassUID] = m.StudyRootSOPClass
	env.SetTargetDetails(target)
	env.SetNormalizedData(body)
	return envelope.Continue, nil
}

// get builds a fixed-match identifier for a WADO retrieve and sets the
// dimse.* metadata internal/backends.DIMSE's C-GET dispatch reads, with
// responseFormat selecting how the retrieved instance(s) render.
func (m *Middleware) get(env *envelope.Envelope, fixed map[string]string, responseFormat string) (envelope.Outcome, *errortaxonomy.Error) {
	id := dicomjson.Identifier{}
	for tag, value := range fixed {
		id[tag] = dicomjson.Element{VR: "UI", Value: []any{value}}
	}
	body, err := dicomjson.ToJSON(id)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to encode WADO identifier", err)
	}

	target := env.TargetDetails()
	if target.Metadata == nil {
		target.Metadata = map[string]string{}
	}
	target.Metadata[backends.MetaOperation] = backends.OperationGet
	target.Metadata[backends.MetaDestinationAET] = m.DestinationAET
	target.Metadata[backends.MetaSOPClassUID] = m.StudyRootSOPClass
	target.Metadata[backends.MetaResponseFormat] = responseFormat
	env.SetTargetDetails(target)
	env.SetNormalizedData(body)
	return envelope.Continue, nil
}

func (m *Middleware) store(env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	if target.Metadata == nil {
		target.Metadata = map[string]string{}
	}
	target.Metadata[backends.MetaOperation] = backends.OperationStore
	target.Metadata[backends.MetaDestinationAET] = m.DestinationAET
	target.Metadata[backends.MetaSOPClassUID] = m.StorageSOPClass
	if sopInstanceUID, sopClassUID, ok := datasetIdentifiers(env.OriginalPayload().Bytes); ok {
		target.Metadata[backends.MetaSOPInstanceUID] = sopInstanceUID
		if sopClassUID != "" {
			target.Metadata[backends.MetaSOPClassUID] = sopClassUID
		}
	}
	env.SetTargetDetails(target)
	return envelope.Continue, nil
}

// datasetIdentifiers reads the SOP Instance/Class UID tags out of a STOW-RS
// request body. The body is DICOM-JSON in this gateway's STOW-RS ingest
// path; a Part10 body (no DICOM-JSON reader exists for one, only
// dicomjson.WritePart10) is left for the caller to handle without a
// populated MetaSOPInstanceUID.
func datasetIdentifiers(body []byte) (sopInstanceUID, sopClassUID string, ok bool) {
	id, err := dicomjson.FromJSON(body)
	if err != nil {
		return "", "", false
	}
	instance, hasInstance := id[sopInstanceUIDTag]
	if !hasInstance || len(instance.Value) == 0 {
		return "", "", false
	}
	uid, ok := instance.Value[0].(string)
	if !ok || uid == "" {
		return "", "", false
	}
	if class, hasClass := id[sopClassUIDTag]; hasClass && len(class.Value) > 0 {
		if s, ok := class.Value[0].(string); ok {
			sopClassUID = s
		}
	}
	return uid, sopClassUID, true
}

// buildQuery maps QIDO request query parameters into a DICOM-JSON
// identifier. Parameter keys are accepted either as a bare DICOM keyword
// (e.g. "PatientID") or an 8-hex-digit tag; this gateway's fixed keyword
// table covers the attributes QIDO commonly filters on.
func (m *Middleware) buildQuery(env *envelope.Envelope, level command.QueryLevel, fixed map[string]string) (dicomjson.Identifier, map[string]MatchType) {
	id := dicomjson.Identifier{}
	matchTypes := make(map[string]MatchType)

	for tag, value := range fixed {
		id[tag] = dicomjson.Element{VR: "UI", Value: []any{value}}
		matchTypes[tag] = MatchExact
	}

	for key, values := range env.TargetDetails().Query {
		if len(values) == 0 {
			continue
		}
		tag, vr, ok := keywordTag(key)
		if !ok {
			continue
		}
		value := values[0]
		matchTypes[tag] = InferMatchType(value)
		if value == "" {
			id[tag] = dicomjson.Element{VR: vr} // universal match: present, empty
			continue
		}
		id[tag] = dicomjson.Element{VR: vr, Value: []any{value}}
	}

	id["00080052"] = dicomjson.Element{VR: "CS", Value: []any{string(level)}}
	return id, matchTypes
}

// keywordTag maps a fixed set of commonly queried QIDO keywords (and raw
// 8-hex-digit tags) to their DICOM tag and VR.
func keywordTag(key string) (tag, vr string, ok bool) {
	switch key {
	case "PatientID":
		return "00100020", "LO", true
	case "PatientName":
		return "00100010", "PN", true
	case "StudyInstanceUID":
		return studyUIDTag, "UI", true
	case "SeriesInstanceUID":
		return seriesUIDTag, "UI", true
	case "StudyDate":
		return "00080020", "DA", true
	case "ModalitiesInStudy":
		return "00080061", "CS", true
	case "AccessionNumber":
		return "00080050", "SH", true
	default:
		if len(key) == 8 && isHex(key) {
			return strings.ToUpper(key), "UN", true
		}
		return "", "", false
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
