package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/checksum"
	"github.com/release-tools/release-composer/internal/config"
	"github.com/release-tools/release-composer/internal/signing"
	"github.com/release-tools/release-composer/internal/utils/logger"
)

// Verify command flags
var (
	verPublicKey string
	verSignature string
)

// createVerifyCommand creates the verify subcommand
func createVerifyCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify CHECKSUMS_FILE",
		Short: "Verify release assets against a checksum manifest",
		Long: `Re-hash every file named in a checksum manifest and report mismatches.
Files are resolved relative to the manifest's directory.

With --public-key the manifest's detached signature is checked first.`,
		Args: cobra.ExactArgs(1),
		RunE: executeVerify,
	}

	verifyCmd.Flags().StringVar(&verPublicKey, "public-key", "",
		"Armored OpenPGP public key for signature verification")
	verifyCmd.Flags().StringVar(&verSignature, "signature", "",
		"Detached signature file (default: CHECKSUMS_FILE.asc)")

	return verifyCmd
}

// executeVerify handles the verify command logic
func executeVerify(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	manifestPath := args[0]

	if verPublicKey != "" {
		sigPath := verSignature
		if sigPath == "" {
			sigPath = manifestPath + signing.SignatureSuffix
		}
		if err := signing.VerifyDetached(manifestPath, sigPath, verPublicKey); err != nil {
			return err
		}
		log.Infof("✓ Signature verified against %s", filepath.Base(verPublicKey))
	}

	hasher, err := checksum.ProbeHasher(config.HashBackend())
	if err != nil {
		return err
	}
	log.Debugf("verifying with %s", hasher.Name())

	mismatches, err := checksum.Verify(manifestPath, hasher)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		for _, m := range mismatches {
			log.Errorf("  %s: %s", m.Name, m.Reason)
		}
		return fmt.Errorf("%d file(s) failed verification", len(mismatches))
	}

	log.Infof("✓ All files verified")
	return nil
}
