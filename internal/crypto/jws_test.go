package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, privPEM, pubPEM
}

func TestDetachedSignatureRoundTrip(t *testing.T) {
	key, privPEM, pubPEM := testKey(t)
	payload := []byte(`{"items":[]}`)
	sig, err := SignDetachedJWS(payload, privPEM)
	if err != nil {
		t.Fatalf("SignDetachedJWS: %v", err)
	}
	if sig.Payload != "" || sig.KeyID != KeyID(&key.PublicKey) {
		t.Fatalf("sig = %+v", sig)
	}
	if err := VerifyDetachedJWS(payload, sig, pubPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
	if err := VerifyDetachedJWS([]byte(`{"items":[1]}`), sig, pubPEM); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload err = %v", err)
	}
}

func TestPKCS8AndRejects(t *testing.T) {
	key, _, pubPEM := testKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	sig, err := SignDetachedJWS([]byte("x"), pkcs8)
	if err != nil {
		t.Fatalf("SignDetachedJWS pkcs8: %v", err)
	}
	if err := VerifyDetachedJWS([]byte("x"), sig, pubPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
	if _, err := SignDetachedJWS([]byte("x"), []byte("not pem")); err == nil {
		t.Fatalf("expected error for missing PEM block")
	}
	sig.Protected = "!!"
	if err := VerifyDetachedJWS([]byte("x"), sig, pubPEM); err == nil {
		t.Fatalf("expected error for corrupt header")
	}
}
