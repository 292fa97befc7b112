package flow

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/pquerna/otp"
)

// DefaultQRSize is the edge length in pixels of exported QR images
const DefaultQRSize = 256

var writeClipboard = clipboard.WriteAll

// BackupCodesText renders codes one per line, the format used for both the
// clipboard and the downloaded file
func BackupCodesText(codes []string) string {
	return strings.Join(codes, "\n")
}

// CopyBackupCodes puts the codes on the system clipboard
func CopyBackupCodes(codes []string) error {
	if len(codes) == 0 {
		return fmt.Errorf("no backup codes to copy")
	}
	if err := writeClipboard(BackupCodesText(codes)); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// BackupCodesFilename is the download name for email's codes
func BackupCodesFilename(email string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_").Replace(email)
	return "backup-codes-" + safe + ".txt"
}

// WriteBackupCodes saves the codes into dir, readable by the owner only, and
// returns the file path
func WriteBackupCodes(dir, email string, codes []string) (string, error) {
	if len(codes) == 0 {
		return "", fmt.Errorf("no backup codes to write")
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, BackupCodesFilename(email))
	if err := os.WriteFile(path, []byte(BackupCodesText(codes)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write backup codes: %w", err)
	}
	return path, nil
}

// ProvisioningKey parses the otpauth URI handed out at enrollment
func ProvisioningKey(payload string) (*otp.Key, error) {
	key, err := otp.NewKeyFromURL(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning URI: %w", err)
	}
	if key.Secret() == "" {
		return nil, fmt.Errorf("invalid provisioning URI: missing secret")
	}
	return key, nil
}

// WriteQRCode renders the provisioning URI as a PNG an authenticator app can
// scan
func WriteQRCode(path, payload string, size int) error {
	key, err := ProvisioningKey(payload)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	img, err := key.Image(size, size)
	if err != nil {
		return fmt.Errorf("render QR code: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create QR file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode QR code: %w", err)
	}
	return f.Close()
}
