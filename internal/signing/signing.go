// Package signing produces and checks detached ASCII-armored OpenPGP
// signatures for release files, typically the checksum manifest.
package signing

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/security"
)

// SignatureSuffix is appended to the signed file's name.
const SignatureSuffix = ".asc"

// PublicKeyName is the armored public key published next to the
// signature so consumers can verify without fetching a key elsewhere.
const PublicKeyName = "signing-key.asc"

// loadSigner reads an armored keyring and returns the first entity
// holding a usable private key.
func loadSigner(keyPath string) (*openpgp.Entity, error) {
	keyBytes, err := security.SafeReadFile(keyPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if entity.PrivateKey.Encrypted {
			return nil, fmt.Errorf("signing key %s is passphrase protected", keyPath)
		}
		return entity, nil
	}
	return nil, fmt.Errorf("no private key found in %s", keyPath)
}

// SignDetached writes an armored detached signature for path next to it
// and returns the signature file path.
func SignDetached(path, keyPath string) (string, error) {
	log := logger.Logger()

	signer, err := loadSigner(keyPath)
	if err != nil {
		return "", err
	}

	message, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for signing: %w", path, err)
	}
	defer message.Close()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, signer, message, &packet.Config{}); err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}

	sigPath := path + SignatureSuffix
	if err := os.WriteFile(sigPath, sig.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write signature %s: %w", sigPath, err)
	}
	log.Infof("wrote detached signature %s", sigPath)
	return sigPath, nil
}

// VerifyDetached checks the armored detached signature sigPath over path
// against the armored public keyring at keyPath.
func VerifyDetached(path, sigPath, keyPath string) error {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyBytes))
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	signed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read signed file: %w", err)
	}
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	_, err = openpgp.CheckArmoredDetachedSignature(
		openpgp.EntityList(keyring),
		bytes.NewReader(signed),
		bytes.NewReader(sig),
		&packet.Config{},
	)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// ExportPublicKey returns the signer's armored public key so it can be
// published alongside the release.
func ExportPublicKey(keyPath string) (string, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	enc, err := armor.Encode(&out, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start armor encoder: %w", err)
	}
	if err := signer.Serialize(enc); err != nil {
		return "", fmt.Errorf("failed to serialize public key: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finish armor encoder: %w", err)
	}
	return out.String(), nil
}
