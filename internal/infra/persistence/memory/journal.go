package memory

import (
	"fmt"

	"sitcomledger/pkg/domain"
)

// JournalEntry is the row form of an appended record. Durable backends store
// one entry per record in commit order; Payload is authoritative and the other
// columns exist for querying.
type JournalEntry struct {
	Kind     domain.RecordKind
	RecordID string
	Student  int64
	Term     int64
	Payload  []byte
}

// JournalEntries converts committed changes into journal rows.
func JournalEntries(changes []domain.Change) ([]JournalEntry, error) {
	entries := make([]JournalEntry, 0, len(changes))
	for _, c := range changes {
		if c.Action != domain.ActionCreate {
			return nil, fmt.Errorf("journal: unsupported action %q", c.Action)
		}
		payload, err := domain.EncodeRecord(c.Record)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		entries = append(entries, JournalEntry{
			Kind:     c.Record.Kind(),
			RecordID: c.Record.RecordID().String(),
			Student:  int64(c.Record.Student()),
			Term:     int64(c.Record.TermKey()),
			Payload:  []byte(payload),
		})
	}
	return entries, nil
}

// DecodeJournal turns journal rows back into records, preserving order.
func DecodeJournal(entries []JournalEntry) ([]domain.Record, error) {
	records := make([]domain.Record, 0, len(entries))
	for i, e := range entries {
		r, err := domain.DecodeRecord(e.Kind, e.Payload)
		if err != nil {
			return nil, fmt.Errorf("journal row %d: %w", i, err)
		}
		if e.RecordID != "" && r.RecordID().String() != e.RecordID {
			return nil, fmt.Errorf("journal row %d: record id %s does not match payload %s", i, e.RecordID, r.RecordID())
		}
		records = append(records, r)
	}
	return records, nil
}
