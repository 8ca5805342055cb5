package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneIsIndependent(t *testing.T) {
	original := New(KeyRequestID, "req-1")
	cloned := original.Clone()
	cloned[KeyRequestID] = "req-2"

	if original[KeyRequestID] != "req-1" {
		t.Fatalf("clone mutated the original: %#v", original)
	}
}

func TestWithSkipsEmptyValues(t *testing.T) {
	md := Metadata{}.With(KeyStatus, "success").With(KeyCorrelationID, "")

	if md[KeyStatus] != "success" {
		t.Fatalf("expected status to be set, got %#v", md)
	}
	if _, ok := md[KeyCorrelationID]; ok {
		t.Fatalf("expected empty correlation id to be skipped, got %#v", md)
	}
}

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "dangling")
	if len(md) != 1 || md["a"] != "1" {
		t.Fatalf("unexpected metadata %#v", md)
	}
}

func TestToWatermillCopies(t *testing.T) {
	md := New(KeyRequestID, "req-9", KeyCorrelationID, "corr")
	wm := ToWatermill(md)
	if wm.Get(KeyRequestID) != "req-9" || wm.Get(KeyCorrelationID) != "corr" {
		t.Fatalf("unexpected watermill metadata %#v", wm)
	}
	wm.Set(KeyStatus, "success")
	if _, ok := md[KeyStatus]; ok {
		t.Fatalf("watermill map shares storage with %#v", md)
	}
	if got := ToWatermill(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil watermill metadata, got %#v", got)
	}
}

func TestCarrySkipsMissingKeys(t *testing.T) {
	in := message.Metadata{KeyCorrelationID: "corr", KeyStatus: "", "other": "x"}
	got := Carry(in, KeyCorrelationID, KeyStatus, KeyRequestID)
	if len(got) != 1 || got.CorrelationID() != "corr" {
		t.Fatalf("unexpected carried metadata %#v", got)
	}
	if got := Carry(nil, KeyCorrelationID); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil metadata, got %#v", got)
	}
}
