package metadata

import "testing"

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}

	var empty Metadata
	if empty.Clone() == nil {
		t.Fatal("expected non-nil clone of nil metadata")
	}
}

func TestWithAndMerge(t *testing.T) {
	base := Metadata{KeySender: "camera"}
	enriched := base.With("tick", "3")
	if _, ok := base["tick"]; ok {
		t.Fatal("With must not mutate the receiver")
	}
	if enriched["tick"] != "3" || enriched.Sender() != "camera" {
		t.Fatalf("unexpected enriched map %#v", enriched)
	}

	merged := base.Merge(Metadata{KeySender: "lidar", "x": "y"})
	if merged.Sender() != "lidar" || merged["x"] != "y" {
		t.Fatalf("expected entries to win on conflict, got %#v", merged)
	}
	if base.Sender() != "camera" {
		t.Fatal("Merge must not mutate the receiver")
	}
}

func TestNew(t *testing.T) {
	md := New(KeySender, "pose", "dangling")
	if len(md) != 1 || md.Sender() != "pose" {
		t.Fatalf("unexpected metadata %#v", md)
	}
}
