package webhooks

import (
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerify(t *testing.T) {
	sig := Sign("secret", []byte("payload"))

	if !Verify("secret", []byte("payload"), sig) {
		t.Error("Expected signature to verify")
	}
	if Verify("secret", []byte("tampered"), sig) {
		t.Error("Expected tampered payload to fail")
	}
	if Verify("secret", []byte("payload"), "zz-not-hex") {
		t.Error("Expected malformed signature to fail")
	}
}
