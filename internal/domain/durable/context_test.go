package durable_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/Strob0t/FlowForge/internal/domain/durable"
)

func TestSet_ProtectedIdempotent(t *testing.T) {
	c := durable.NewContext("s1")
	if err := c.SetProtected("model", "gpt-4o"); err != nil {
		t.Fatal(err)
	}

	// Equal re-set is a no-op, not an error.
	if err := c.Set("model", "gpt-4o"); err != nil {
		t.Fatalf("equal re-set should succeed: %v", err)
	}

	verBefore := c.Version()
	err := c.Set("model", "claude")
	if !errors.Is(err, durable.ErrProtectedKey) {
		t.Fatalf("expected ErrProtectedKey, got %v", err)
	}
	if got, _ := c.Get("model"); got != "gpt-4o" {
		t.Fatalf("value changed after rejected set: %v", got)
	}
	if c.Version() != verBefore {
		t.Fatalf("version changed after rejected set: %d -> %d", verBefore, c.Version())
	}
}

func TestDelete_ProtectedRejected(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.SetProtected("k", 1)
	if err := c.Delete("k"); !errors.Is(err, durable.ErrProtectedKey) {
		t.Fatalf("expected ErrProtectedKey, got %v", err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Fatal("protected key was deleted")
	}
}

func TestSet_DeepCopiesValue(t *testing.T) {
	c := durable.NewContext("s1")
	val := map[string]any{"nested": []any{1, 2}}
	_ = c.Set("k", val)

	// Mutating the caller's map must not corrupt stored state.
	val["nested"] = "corrupted"

	got, _ := c.Get("k")
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if !reflect.DeepEqual(m["nested"], []any{1, 2}) {
		t.Fatalf("stored value was corrupted: %v", m["nested"])
	}
}

func TestVersionMonotonicity(t *testing.T) {
	c := durable.NewContext("s1")
	prev := c.Version()
	ops := []func(){
		func() { _ = c.Set("a", 1) },
		func() { c.SetEphemeral("b", 2) },
		func() { _ = c.MergePhaseResults(map[string]any{"c": 3}, durable.MergeSafe, "") },
		func() { _ = c.Delete("a") },
		func() { c.ClearEphemeral() },
	}
	for i, op := range ops {
		op()
		if c.Version() <= prev {
			t.Fatalf("op %d did not increase version: %d -> %d", i, prev, c.Version())
		}
		prev = c.Version()
	}
}

func TestMergeSafe_Laws(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.Set("existing", "old")

	data := map[string]any{"existing": "new", "fresh": "v"}
	if err := c.MergePhaseResults(data, durable.MergeSafe, ""); err != nil {
		t.Fatal(err)
	}

	if got, _ := c.Get("existing"); got != "old" {
		t.Fatalf("safe merge overwrote existing key: %v", got)
	}
	if got, _ := c.Get("fresh"); got != "v" {
		t.Fatalf("safe merge did not add new key: %v", got)
	}

	// Applying the same merge twice leaves the data identical to once.
	before := c.Persistent()
	if err := c.MergePhaseResults(data, durable.MergeSafe, ""); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, c.Persistent()) {
		t.Fatalf("safe merge is not idempotent:\n%v\n%v", before, c.Persistent())
	}
}

func TestMergeUpdate_SkipsProtected(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.SetProtected("locked", "keep")
	_ = c.Set("open", "old")

	err := c.MergePhaseResults(map[string]any{"locked": "clobber", "open": "new"}, durable.MergeUpdate, "")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Get("locked"); got != "keep" {
		t.Fatalf("update merge overwrote protected key: %v", got)
	}
	if got, _ := c.Get("open"); got != "new" {
		t.Fatalf("update merge did not overwrite: %v", got)
	}
}

func TestMergeReplace_CarriesProtected(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.SetProtected("locked", "keep")
	_ = c.Set("gone", "x")

	_ = c.MergePhaseResults(map[string]any{"only": "this"}, durable.MergeReplace, "")

	if _, ok := c.Get("gone"); ok {
		t.Fatal("replace merge kept prior state")
	}
	if got, _ := c.Get("only"); got != "this" {
		t.Fatalf("replace merge missing new data: %v", got)
	}
	if got, _ := c.Get("locked"); got != "keep" {
		t.Fatalf("replace merge dropped protected key: %v", got)
	}
}

func TestMergePrefixed(t *testing.T) {
	c := durable.NewContext("s1")
	if err := c.MergePhaseResults(map[string]any{"out": 1}, durable.MergePrefixed, ""); !errors.Is(err, durable.ErrPrefixRequired) {
		t.Fatalf("expected ErrPrefixRequired, got %v", err)
	}
	if err := c.MergePhaseResults(map[string]any{"out": 1}, durable.MergePrefixed, "analyze"); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Get("analyze.out"); got != 1 {
		t.Fatalf("expected prefixed key, got %v", got)
	}
}

func TestMerge_UnknownStrategy(t *testing.T) {
	c := durable.NewContext("s1")
	err := c.MergePhaseResults(map[string]any{"k": 1}, "bogus", "")
	if !errors.Is(err, durable.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSnapshot_RestoreOverwrites(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.Set("a", 1)
	snap := c.CreateSnapshot("before work", nil)

	_ = c.Set("a", 2)
	_ = c.Set("b", 3)

	if err := c.RestoreSnapshot(snap.Version); err != nil {
		t.Fatal(err)
	}
	if c.Version() != snap.Version {
		t.Fatalf("expected version %d, got %d", snap.Version, c.Version())
	}
	if got, _ := c.Get("a"); got != 1 {
		t.Fatalf("expected restored value 1, got %v", got)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("restore kept state written after the snapshot")
	}
}

func TestSnapshot_RestoreLatest(t *testing.T) {
	c := durable.NewContext("s1")
	if err := c.RestoreLatest(); !errors.Is(err, durable.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	_ = c.Set("a", 1)
	c.CreateSnapshot("first", nil)
	_ = c.Set("a", 2)
	c.CreateSnapshot("second", nil)
	_ = c.Set("a", 3)

	if err := c.RestoreLatest(); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Get("a"); got != 2 {
		t.Fatalf("expected latest snapshot value 2, got %v", got)
	}
}

func TestSnapshot_RestoreVersionZero(t *testing.T) {
	c := durable.NewContext("s1")
	snap := c.CreateSnapshot("initial", nil)
	if snap.Version != 0 {
		t.Fatalf("expected fresh context snapshot at version 0, got %d", snap.Version)
	}

	_ = c.Set("a", 1)
	if err := c.RestoreSnapshot(0); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("restore of the version-0 snapshot kept later state")
	}

	if err := c.RestoreSnapshot(99); !errors.Is(err, durable.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound for unknown version, got %v", err)
	}
}

func TestSnapshot_RingEviction(t *testing.T) {
	c := durable.NewContext("s1")
	for i := 0; i < durable.MaxSnapshots+10; i++ {
		_ = c.Set("i", i)
		c.CreateSnapshot(fmt.Sprintf("snap-%d", i), nil)
	}
	snaps := c.Snapshots()
	if len(snaps) != durable.MaxSnapshots {
		t.Fatalf("expected %d snapshots, got %d", durable.MaxSnapshots, len(snaps))
	}
	if snaps[0].Reason != "snap-10" {
		t.Fatalf("expected oldest snapshots evicted, got %s", snaps[0].Reason)
	}
}

func TestSerialize_BoundedHistory(t *testing.T) {
	c := durable.NewContext("s1")
	for i := 0; i < 100; i++ {
		_ = c.Set("i", i)
		c.CreateSnapshot("s", nil)
	}

	s := c.Serialize()
	if len(s.Snapshots) != durable.SerializedSnapshots {
		t.Fatalf("expected %d serialized snapshots, got %d", durable.SerializedSnapshots, len(s.Snapshots))
	}
	if len(s.ChangeLog) != durable.SerializedChangeLog {
		t.Fatalf("expected %d serialized log entries, got %d", durable.SerializedChangeLog, len(s.ChangeLog))
	}
	if s.SessionID != "s1" || s.Version != c.Version() {
		t.Fatalf("serialized header mismatch: %+v", s)
	}
}

func TestFromSerialized_RoundTrip(t *testing.T) {
	c := durable.NewContext("s1")
	_ = c.SetProtected("locked", "v")
	_ = c.Set("open", 42)
	c.SetEphemeral("tmp", "x")

	restored := durable.FromSerialized(c.Serialize())
	if restored.SessionID() != "s1" || restored.Version() != c.Version() {
		t.Fatalf("roundtrip header mismatch")
	}
	if !restored.IsProtected("locked") {
		t.Fatal("protection lost in roundtrip")
	}
	if got, _ := restored.Get("open"); got != float64(42) && got != 42 {
		t.Fatalf("unexpected roundtrip value: %v", got)
	}
	if got, _ := restored.GetEphemeral("tmp"); got != "x" {
		t.Fatalf("ephemeral lost in roundtrip: %v", got)
	}
}
