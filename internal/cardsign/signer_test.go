package cardsign

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

func writeECKey(t *testing.T) string {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "signing.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestSignerSignAndVerify(t *testing.T) {
	path := writeECKey(t)
	signer, err := NewSigner(path, "card-key-1")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if signer.alg != jwa.ES256 {
		t.Fatalf("alg = %s, want ES256", signer.alg)
	}

	payload := []byte(`{"name":"relay","url":"https://agent.example.com"}`)
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.Protected == "" || sig.Signature == "" {
		t.Fatalf("signature = %+v", sig)
	}

	// The protected header names the algorithm and key id.
	headerJSON, err := base64.RawURLEncoding.DecodeString(sig.Protected)
	if err != nil {
		t.Fatalf("decode protected header: %v", err)
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("parse protected header: %v", err)
	}
	if header.Alg != "ES256" || header.Kid != "card-key-1" {
		t.Fatalf("header = %+v", header)
	}

	// Reassemble the compact form and verify with the public key.
	compact := sig.Protected + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + sig.Signature
	pub, err := jwk.PublicKeyOf(signer.key)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	verified, err := jws.Verify([]byte(compact), jws.WithKey(jwa.ES256, pub))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if string(verified) != string(payload) {
		t.Fatal("verified payload differs")
	}
}

func TestNewSignerErrors(t *testing.T) {
	if _, err := NewSigner(filepath.Join(t.TempDir(), "missing.pem"), ""); err == nil {
		t.Fatal("expected an error for a missing key file")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewSigner(bad, ""); err == nil || !strings.Contains(err.Error(), "parse signing key") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}
