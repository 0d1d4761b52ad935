package ledger

import (
	"encoding/binary"

	"sitcomledger/pkg/domain"
)

// Deriver computes record identifiers. Every kind hashes one canonical layout:
//
//	seed || [u32 LE len(caller) || caller] || student u64 LE || code LE || term u32 LE
//
// where the caller segment is present for staff grants and activity
// approvals only, and code is u16 for competences and u32 for activities.
// Identical inputs and seed give identical identifiers.
type Deriver struct {
	hasher Hasher
}

// NewDeriver builds a deriver around h, defaulting to BLAKE2b.
func NewDeriver(h Hasher) Deriver {
	if h == nil {
		h = Blake2bHasher{}
	}
	return Deriver{hasher: h}
}

// Hasher returns the configured hasher.
func (d Deriver) Hasher() Hasher {
	if d.hasher == nil {
		return Blake2bHasher{}
	}
	return d.hasher
}

// StaffCompetence derives the identifier of a staff grant.
func (d Deriver) StaffCompetence(seed Seed, caller domain.Identity, student domain.StudentID, competence domain.CompetenceID, term domain.TermKey) domain.RecordID {
	buf := appendCaller(append([]byte(nil), seed...), caller)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(student))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(competence))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(term))
	return d.Hasher().Sum(buf)
}

// Activity derives the identifier of an activity approval.
func (d Deriver) Activity(seed Seed, caller domain.Identity, student domain.StudentID, activity domain.ActivityID, term domain.TermKey) domain.RecordID {
	buf := appendCaller(append([]byte(nil), seed...), caller)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(student))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(activity))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(term))
	return d.Hasher().Sum(buf)
}

// AutoCompetence derives the identifier of an automatic grant.
func (d Deriver) AutoCompetence(seed Seed, student domain.StudentID, competence domain.CompetenceID, term domain.TermKey) domain.RecordID {
	buf := append([]byte(nil), seed...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(student))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(competence))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(term))
	return d.Hasher().Sum(buf)
}

func appendCaller(buf []byte, caller domain.Identity) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(caller)))
	return append(buf, caller...)
}
