package apikey

import "testing"

func TestGenerateHashVerify(t *testing.T) {
	raw, err := Generate()
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty secret")
	}

	hashed, err := Hash(raw, "pepper")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !Verify(hashed, raw, "pepper") {
		t.Fatal("expected matching secret to verify")
	}
	if Verify(hashed, raw, "wrong-pepper") {
		t.Fatal("expected mismatched pepper to fail verification")
	}
	if Verify(hashed, "not-the-secret", "pepper") {
		t.Fatal("expected wrong secret to fail verification")
	}
}
