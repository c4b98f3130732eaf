package command

import (
	"strconv"

	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// Command group-0000 tags, per PS3.7. Encoded via the DICOM-JSON codec
// rather than implicit-VR little-endian bytes (see package comment).
const (
	tagAffectedSOPClassUID    = "00000002"
	tagCommandField           = "00000100"
	tagMessageID              = "00000110"
	tagMessageIDRespondedTo   = "00000120"
	tagMoveDestination        = "00000600"
	tagPriority               = "00000700"
	tagDataSetType            = "00000800"
	tagStatus                 = "00000900"
	tagAffectedSOPInstanceUID = "00001000"
	tagNumRemaining           = "00001020"
	tagNumCompleted           = "00001021"
	tagNumFailed              = "00001022"
	tagNumWarning             = "00001023"
)

// Encode renders m as a DICOM-JSON command-set Identifier.
func Encode(m Message) dicomjson.Identifier {
	id := dicomjson.Identifier{
		tagCommandField: {VR: "US", Value: []any{float64(m.CommandField)}},
		tagMessageID:    {VR: "US", Value: []any{float64(m.MessageID)}},
		tagPriority:     {VR: "US", Value: []any{float64(m.Priority)}},
		tagDataSetType:  {VR: "US", Value: []any{float64(m.DataSetType)}},
	}
	if m.AffectedSOPClassUID != "" {
		id[tagAffectedSOPClassUID] = dicomjson.Element{VR: "UI", Value: []any{m.AffectedSOPClassUID}}
	}
	if m.AffectedSOPInstanceUID != "" {
		id[tagAffectedSOPInstanceUID] = dicomjson.Element{VR: "UI", Value: []any{m.AffectedSOPInstanceUID}}
	}
	if m.MessageIDBeingRespondedTo != 0 {
		id[tagMessageIDRespondedTo] = dicomjson.Element{VR: "US", Value: []any{float64(m.MessageIDBeingRespondedTo)}}
	}
	if m.MoveDestinationAET != "" {
		id[tagMoveDestination] = dicomjson.Element{VR: "AE", Value: []any{m.MoveDestinationAET}}
	}
	if isResponseField(m.CommandField) {
		id[tagStatus] = dicomjson.Element{VR: "US", Value: []any{float64(m.Status)}}
	}
	if m.SubOperations != (Counts{}) {
		id[tagNumRemaining] = dicomjson.Element{VR: "US", Value: []any{float64(m.SubOperations.Remaining)}}
		id[tagNumCompleted] = dicomjson.Element{VR: "US", Value: []any{float64(m.SubOperations.Completed)}}
		id[tagNumFailed] = dicomjson.Element{VR: "US", Value: []any{float64(m.SubOperations.Failed)}}
		id[tagNumWarning] = dicomjson.Element{VR: "US", Value: []any{float64(m.SubOperations.Warning)}}
	}
	return id
}

func isResponseField(f Field) bool {
	return f&0x8000 != 0
}

// Decode parses a DICOM-JSON command-set Identifier back into a Message.
func Decode(id dicomjson.Identifier) (Message, *errortaxonomy.Error) {
	var m Message

	field, err := requiredUint16(id, tagCommandField)
	if err != nil {
		return Message{}, err
	}
	m.CommandField = Field(field)

	messageID, err := requiredUint16(id, tagMessageID)
	if err != nil {
		return Message{}, err
	}
	m.MessageID = messageID

	if el, ok := id[tagMessageIDRespondedTo]; ok {
		m.MessageIDBeingRespondedTo, err = elementUint16(el)
		if err != nil {
			return Message{}, err
		}
	}
	if el, ok := id[tagPriority]; ok {
		m.Priority, err = elementUint16(el)
		if err != nil {
			return Message{}, err
		}
	}
	if el, ok := id[tagDataSetType]; ok {
		m.DataSetType, err = elementUint16(el)
		if err != nil {
			return Message{}, err
		}
	}
	if el, ok := id[tagStatus]; ok {
		v, err := elementUint16(el)
		if err != nil {
			return Message{}, err
		}
		m.Status = Status(v)
	}
	if el, ok := id[tagAffectedSOPClassUID]; ok {
		m.AffectedSOPClassUID, _ = elementString(el)
	}
	if el, ok := id[tagAffectedSOPInstanceUID]; ok {
		m.AffectedSOPInstanceUID, _ = elementString(el)
	}
	if el, ok := id[tagMoveDestination]; ok {
		m.MoveDestinationAET, _ = elementString(el)
	}
	if el, ok := id[tagNumRemaining]; ok {
		v, err := elementUint16(el)
		if err != nil {
			return Message{}, err
		}
		m.SubOperations.Remaining = int(v)
	}
	if el, ok := id[tagNumCompleted]; ok {
		v, err := elementUint16(el)
		if err != nil {
			return Message{}, err
		}
		m.SubOperations.Completed = int(v)
	}
	if el, ok := id[tagNumFailed]; ok {
		v, err := elementUint16(el)
		if err != nil {
			return Message{}, err
		}
		m.SubOperations.Failed = int(v)
	}
	if el, ok := id[tagNumWarning]; ok {
		v, err := elementUint16(el)
		if err != nil {
			return Message{}, err
		}
		m.SubOperations.Warning = int(v)
	}

	return m, nil
}

func requiredUint16(id dicomjson.Identifier, tag string) (uint16, *errortaxonomy.Error) {
	el, ok := id[tag]
	if !ok {
		return 0, errortaxonomy.Newf(errortaxonomy.DicomParsing, "command set missing required tag %s", tag)
	}
	return elementUint16(el)
}

func elementUint16(el dicomjson.Element) (uint16, *errortaxonomy.Error) {
	if len(el.Value) == 0 {
		return 0, errortaxonomy.New(errortaxonomy.DicomParsing, "command element has no value")
	}
	switch v := el.Value[0].(type) {
	case float64:
		return uint16(v), nil
	case string:
		n, convErr := strconv.ParseUint(v, 10, 16)
		if convErr != nil {
			return 0, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "command element is not numeric", convErr)
		}
		return uint16(n), nil
	default:
		return 0, errortaxonomy.New(errortaxonomy.DicomParsing, "command element has unsupported value type")
	}
}

func elementString(el dicomjson.Element) (string, *errortaxonomy.Error) {
	if len(el.Value) == 0 {
		return "", errortaxonomy.New(errortaxonomy.DicomParsing, "command element has no value")
	}
	s, ok := el.Value[0].(string)
	if !ok {
		return "", errortaxonomy.New(errortaxonomy.DicomParsing, "command element is not a string")
	}
	return s, nil
}
