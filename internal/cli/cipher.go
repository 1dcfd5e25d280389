// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-libcrypto.
//
// go-libcrypto is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/provider"
)

// encryptCmd encrypts stdin or a file with the selected cipher family.
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt data with the native backend",
	Long: `Encrypt data read from a file or stdin. AEAD families append the
authentication tag to the ciphertext; output is base64 on stdout or raw
bytes when written to a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCipher(cmd, backend.DirectionEncrypt)
	},
}

// decryptCmd is the inverse of encryptCmd. AEAD input must carry the tag
// as its trailing bytes.
var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt data with the native backend",
	Long: `Decrypt data read from a file or stdin. AEAD families expect the
authentication tag appended to the ciphertext and fail on any mismatch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCipher(cmd, backend.DirectionDecrypt)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{encryptCmd, decryptCmd} {
		cmd.Flags().StringP("algorithm", "a", "aes-gcm",
			"cipher family (aes-gcm, chacha20, chacha20-poly1305, aes-cbc)")
		cmd.Flags().String("key", "", "key as hex (required)")
		cmd.Flags().String("iv", "", "IV or nonce as hex (required)")
		cmd.Flags().String("aad", "", "additional authenticated data as hex")
		cmd.Flags().Int("tag-len", 16, "authentication tag length in bytes")
		cmd.Flags().Uint32("counter", 1, "initial block counter (chacha20 only)")
		cmd.Flags().StringP("in", "i", "-", "input file, - for stdin")
		cmd.Flags().String("out", "-", "output file, - for stdout (base64)")
		_ = cmd.MarkFlagRequired("key")
		_ = cmd.MarkFlagRequired("iv")
	}
}

// parseFamily maps the CLI algorithm name onto a cipher family.
func parseFamily(name string) (backend.AlgorithmFamily, error) {
	switch name {
	case "aes-gcm":
		return backend.FamilyGCM, nil
	case "chacha20":
		return backend.FamilyChaCha20, nil
	case "chacha20-poly1305":
		return backend.FamilyChaCha20Poly1305, nil
	case "aes-cbc":
		return backend.FamilyCBC, nil
	default:
		return 0, fmt.Errorf("unknown algorithm: %s", name)
	}
}

func runCipher(cmd *cobra.Command, dir backend.Direction) error {
	algorithm, _ := cmd.Flags().GetString("algorithm")
	keyHex, _ := cmd.Flags().GetString("key")
	ivHex, _ := cmd.Flags().GetString("iv")
	aadHex, _ := cmd.Flags().GetString("aad")
	tagLen, _ := cmd.Flags().GetInt("tag-len")
	counter, _ := cmd.Flags().GetUint32("counter")
	inPath, _ := cmd.Flags().GetString("in")
	outPath, _ := cmd.Flags().GetString("out")

	family, err := parseFamily(algorithm)
	if err != nil {
		return err
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("invalid key hex: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return fmt.Errorf("invalid iv hex: %w", err)
	}
	var aad []byte
	if aadHex != "" {
		if aad, err = hex.DecodeString(aadHex); err != nil {
			return fmt.Errorf("invalid aad hex: %w", err)
		}
	}

	input, err := readInput(inPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p := provider.New(cfg)
	defer p.Close()

	id, err := p.CreateContext(family)
	if err != nil {
		return err
	}
	defer func() { _ = p.DestroyContext(id) }()

	err = p.InitCipher(id, provider.InitParams{
		Direction: dir,
		Key:       key,
		IV:        iv,
		TagLen:    tagLen,
		Counter:   counter,
	})
	if err != nil {
		return err
	}
	if len(aad) > 0 {
		if err := p.UpdateAAD(id, aad); err != nil {
			return err
		}
	}

	size, err := p.OutputSize(id, len(input))
	if err != nil {
		return err
	}
	out := make([]byte, size)
	n, err := p.Finalize(id, input, out)
	if err != nil {
		return err
	}
	return writeOutput(outPath, out[:n])
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path) // #nosec G304 - path is user supplied by design
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		fmt.Println(base64.StdEncoding.EncodeToString(data))
		return nil
	}
	return os.WriteFile(path, data, 0600)
}
