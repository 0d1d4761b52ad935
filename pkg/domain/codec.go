package domain

import (
	"encoding/json"
	"fmt"
)

// EncodeRecord marshals a record into the JSON payload stored by durable backends.
func EncodeRecord(r Record) (json.RawMessage, error) {
	if r == nil {
		return nil, fmt.Errorf("encode record: nil record")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", r.Kind(), err)
	}
	return raw, nil
}

// DecodeRecord unmarshals a payload previously produced by EncodeRecord.
func DecodeRecord(kind RecordKind, raw []byte) (Record, error) {
	switch kind {
	case KindStaffCompetence:
		var r StaffGrantedCompetence
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", kind, err)
		}
		return r, nil
	case KindActivity:
		var r ApprovedActivity
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", kind, err)
		}
		return r, nil
	case KindAutoCompetence:
		var r AutoGrantedCompetence
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", kind, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
