package security

import (
	"strings"
	"testing"
)

func TestHashSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("s3cret-value")
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}
	if !strings.Contains(hash, ":") {
		t.Fatalf("expected salt:hash encoding, got %q", hash)
	}

	ok, err := VerifySecret("s3cret-value", hash)
	if err != nil {
		t.Fatalf("VerifySecret returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected secret to verify")
	}

	ok, err = VerifySecret("wrong-secret", hash)
	if err != nil {
		t.Fatalf("VerifySecret returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatched secret to fail")
	}
}

func TestVerifySecretRejectsMalformed(t *testing.T) {
	if _, err := VerifySecret("secret", "not-a-valid-hash"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}

	ok, err := VerifySecret("", "")
	if err != nil || ok {
		t.Fatalf("empty inputs must fail closed, got ok=%v err=%v", ok, err)
	}
}

func TestDigestIsStable(t *testing.T) {
	a := Digest([]byte(`{"q":"hello"}`))
	b := Digest([]byte(`{"q":"hello"}`))
	if a != b {
		t.Fatalf("digest must be deterministic")
	}
	if a == Digest([]byte(`{"q":"other"}`)) {
		t.Fatalf("different payloads must not collide trivially")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}
