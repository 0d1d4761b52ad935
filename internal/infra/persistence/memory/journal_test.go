package memory

import (
	"strings"
	"testing"

	"sitcomledger/pkg/domain"
)

func TestJournalRoundTrip(t *testing.T) {
	changes := []domain.Change{
		{Action: domain.ActionCreate, Record: staffRecord(1, 7, 30001, 12019)},
		{Action: domain.ActionCreate, Record: activityRecord(2, 7, 4000000001, 22020)},
	}
	entries, err := JournalEntries(changes)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if entries[1].Kind != domain.KindActivity || entries[1].Term != 22020 || entries[1].Student != 7 {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
	records, err := DecodeJournal(entries)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 || records[0] != changes[0].Record || records[1] != changes[1].Record {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestJournalRejectsMismatchedRows(t *testing.T) {
	entries, err := JournalEntries([]domain.Change{{Action: domain.ActionCreate, Record: staffRecord(1, 7, 30001, 12019)}})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	entries[0].RecordID = strings.Repeat("0", 64)
	if _, err := DecodeJournal(entries); err == nil {
		t.Fatalf("expected id mismatch error")
	}
	if _, err := JournalEntries([]domain.Change{{Action: "delete", Record: staffRecord(1, 7, 30001, 12019)}}); err == nil {
		t.Fatalf("expected unsupported action error")
	}
}
