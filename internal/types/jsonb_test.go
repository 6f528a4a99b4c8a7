package types

import (
	"encoding/json"
	"testing"
)

func TestObject_ScanValue_RoundTrip(t *testing.T) {
	original := Object{
		"id":      "b1",
		"count":   json.Number("42"),
		"emailer": map[string]any{"hooks": []any{}},
	}

	dv, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var got Object
	if err := got.Scan(dv); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if got.ID() != "b1" {
		t.Errorf("ID() = %q, want b1", got.ID())
	}
	if got["count"] != json.Number("42") {
		t.Errorf("count = %#v, want json.Number(\"42\")", got["count"])
	}
	if _, ok := got["emailer"].(map[string]any); !ok {
		t.Errorf("emailer = %#v, want map", got["emailer"])
	}
}

func TestObject_ScanNil(t *testing.T) {
	o := Object{"id": "x"}
	if err := o.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if o != nil {
		t.Errorf("Scan(nil) left %v", o)
	}

	v, err := Object(nil).Value()
	if err != nil || v != nil {
		t.Errorf("nil Value() = %v, %v", v, err)
	}
}

func TestObject_ScanString(t *testing.T) {
	var o Object
	if err := o.Scan(`{"id":"r1"}`); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if o.ID() != "r1" {
		t.Errorf("ID() = %q", o.ID())
	}
}

func TestObject_ScanUnsupported(t *testing.T) {
	var o Object
	if err := o.Scan(42); err == nil {
		t.Fatal("expected error for unsupported scan type")
	}
}

func TestImpactedObject_Current(t *testing.T) {
	created := ImpactedObject{New: Object{"id": "n"}}
	deleted := ImpactedObject{Old: Object{"id": "o"}}
	updated := ImpactedObject{Old: Object{"id": "o"}, New: Object{"id": "n"}}

	if created.Current().ID() != "n" || deleted.Current().ID() != "o" || updated.Current().ID() != "n" {
		t.Error("Current() should prefer the new snapshot")
	}
}

func TestPayloadString(t *testing.T) {
	p := map[string]any{"a": "x", "n": json.Number("3"), "nil": nil}
	if PayloadString(p, "a") != "x" || PayloadString(p, "n") != "3" || PayloadString(p, "nil") != "" || PayloadString(p, "missing") != "" {
		t.Errorf("unexpected PayloadString results")
	}
}
