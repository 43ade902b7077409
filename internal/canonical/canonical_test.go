package canonical

import "testing"

func TestMarshal_SortsKeys(t *testing.T) {
	a, err := Marshal(map[string]interface{}{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != `{"a":2,"b":1}` {
		t.Fatalf("unexpected output: %s", a)
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]interface{}{
		"event_id": "evt-1",
		"attempt":  float64(3),
		"nested":   map[string]interface{}{"z": "1", "a": "2"},
	}
	a, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected repeated marshal of same value to be identical, got %s vs %s", a, b)
	}
}
