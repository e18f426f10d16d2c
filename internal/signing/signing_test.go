package signing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// writeTestKey generates a fresh keypair and writes the armored private
// key to dir, returning its path.
func writeTestKey(t *testing.T, dir string) string {
	t.Helper()

	entity, err := openpgp.NewEntity("release bot", "test", "release@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	keyPath := filepath.Join(dir, "signing.asc")
	f, err := os.Create(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc, err := armor.Encode(f, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.SerializePrivate(enc, nil); err != nil {
		t.Fatalf("failed to serialize private key: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return keyPath
}

func TestSignAndVerifyDetached(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)

	target := filepath.Join(dir, "checksums.txt")
	content := "# SHA-256 checksums\nabc123  demo-v1.2.3-linux-x86_64.tar.gz\n"
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sigPath, err := SignDetached(target, keyPath)
	if err != nil {
		t.Fatalf("SignDetached failed: %v", err)
	}
	if sigPath != target+SignatureSuffix {
		t.Fatalf("unexpected signature path %s", sigPath)
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(sig), "BEGIN PGP SIGNATURE") {
		t.Fatalf("signature is not armored:\n%s", sig)
	}

	// the private keyring also carries the public half
	if err := VerifyDetached(target, sigPath, keyPath); err != nil {
		t.Fatalf("VerifyDetached failed on untampered file: %v", err)
	}
}

func TestVerifyDetached_TamperedFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)

	target := filepath.Join(dir, "checksums.txt")
	if err := os.WriteFile(target, []byte("original\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sigPath, err := SignDetached(target, keyPath)
	if err != nil {
		t.Fatalf("SignDetached failed: %v", err)
	}

	if err := os.WriteFile(target, []byte("tampered\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyDetached(target, sigPath, keyPath); err == nil {
		t.Fatal("VerifyDetached accepted a tampered file")
	}
}

func TestSignDetached_MissingKey(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checksums.txt")
	if err := os.WriteFile(target, []byte("data\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := SignDetached(target, filepath.Join(dir, "no-such-key.asc")); err == nil {
		t.Fatal("SignDetached succeeded with a missing key file")
	}
}

func TestExportPublicKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)

	pub, err := ExportPublicKey(keyPath)
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}
	if !strings.Contains(pub, "BEGIN PGP PUBLIC KEY BLOCK") {
		t.Fatalf("exported key is not an armored public key:\n%s", pub)
	}
	if strings.Contains(pub, "PRIVATE KEY") {
		t.Fatal("exported key leaks private key material")
	}
}
