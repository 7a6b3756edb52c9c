package mapping

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func ccMapping(owner, device string, channel, number uint8, action ActionTag, p Params) Mapping {
	return Mapping{
		OwnerID:    owner,
		DeviceName: device,
		Type:       TypeControlChange,
		Channel:    channel,
		Number:     number,
		Action:     action,
		Params:     p,
	}
}

func TestStrictCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	first := ccMapping("alice", "DDJ-400", 0, 13, ActionStemVolume, StemParams{EntityID: "deck1", StemID: "vocals"})
	if err := s.Create(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := first
	second.Action = ActionPlay
	second.Params = NoParams{}
	err := s.Create(ctx, second)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
	// The error names the conflicting key.
	if got := err.Error(); got == ErrDuplicate.Error() {
		t.Errorf("error does not identify the key: %q", got)
	}

	rows, _ := s.List(ctx, "alice", "DDJ-400")
	if len(rows) != 1 || rows[0].Action != ActionStemVolume {
		t.Errorf("first mapping was disturbed: %v", rows)
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	m := ccMapping("alice", "DDJ-400", 0, 13, ActionStemVolume, StemParams{EntityID: "deck1", StemID: "vocals"})
	if err := s.Put(ctx, m); err != nil {
		t.Fatal(err)
	}

	replacement := m
	replacement.Action = ActionStemMute
	replacement.Params = StemParams{EntityID: "deck1", StemID: "drums"}
	if err := s.Put(ctx, replacement); err != nil {
		t.Fatal(err)
	}

	rows, _ := s.List(ctx, "alice", "DDJ-400")
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Action != ActionStemMute {
		t.Errorf("action not replaced: %v", rows[0].Action)
	}
	if sp := rows[0].Params.(StemParams); sp.StemID != "drums" {
		t.Errorf("params not replaced: %+v", sp)
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	m := ccMapping("alice", "DDJ-400", 1, 20, ActionPlay, NoParams{})
	if err := s.Create(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, m.Key()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, m.Key()); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestListScopes(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for _, m := range []Mapping{
		ccMapping("alice", "DDJ-400", 0, 1, ActionPlay, NoParams{}),
		ccMapping("alice", "nanoKONTROL2", 0, 1, ActionStop, NoParams{}),
		ccMapping("bob", "DDJ-400", 0, 1, ActionPlay, NoParams{}),
	} {
		if err := s.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	rows, _ := s.List(ctx, "alice", "DDJ-400")
	if len(rows) != 1 {
		t.Errorf("List: %v", rows)
	}
	all, _ := s.ListOwner(ctx, "alice")
	if len(all) != 2 {
		t.Errorf("ListOwner: %v", all)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	cases := []Mapping{
		ccMapping("", "DDJ-400", 0, 1, ActionPlay, NoParams{}),
		ccMapping("alice", "", 0, 1, ActionPlay, NoParams{}),
		ccMapping("alice", "DDJ-400", 16, 1, ActionPlay, NoParams{}),
		ccMapping("alice", "DDJ-400", 0, 128, ActionPlay, NoParams{}),
		ccMapping("alice", "DDJ-400", 0, 1, ActionTag(200), NoParams{}),
	}
	for i, m := range cases {
		if err := s.Create(ctx, m); err == nil {
			t.Errorf("case %d accepted: %+v", i, m)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	m := ccMapping("alice", "DDJ-400", 2, 64, ActionStemSolo, StemParams{EntityID: "track9", StemID: "bass"})
	m.Provenance = "user"

	rec := m.ToRecord()
	if rec.Type != "ControlChange" || rec.Action != "StemSolo" {
		t.Errorf("record enums: %+v", rec)
	}
	if rec.Params["entity"] != "track9" || rec.Params["stem"] != "bass" {
		t.Errorf("record params: %+v", rec.Params)
	}

	back, err := FromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if back != m {
		t.Errorf("round trip: got %+v, want %+v", back, m)
	}
}

func TestFromRecordRejectsUnknownNames(t *testing.T) {
	rec := Record{OwnerID: "a", DeviceName: "d", Type: "SysEx", Channel: 0, Number: 1, Action: "Play"}
	if _, err := FromRecord(rec); err == nil {
		t.Error("unknown message type accepted")
	}
	rec.Type = "NoteOn"
	rec.Action = "SelfDestruct"
	if _, err := FromRecord(rec); err == nil {
		t.Error("unknown action accepted")
	}
}
