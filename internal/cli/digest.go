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
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/digest"
	"github.com/jeremyhahn/go-libcrypto/pkg/provider"
)

// digestCmd hashes a file or stdin with the native backend.
var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Compute a message digest with the native backend",
	Long:  `Compute a SHA family digest over a file or stdin using the loaded libcrypto`,
	RunE: func(cmd *cobra.Command, args []string) error {
		algorithm, _ := cmd.Flags().GetString("algorithm")
		inPath, _ := cmd.Flags().GetString("in")

		alg, err := parseDigestAlgorithm(algorithm)
		if err != nil {
			return err
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

		b := p.Backend()
		if b == nil {
			return fmt.Errorf("no compatible native backend found")
		}

		d, err := digest.New(b, alg)
		if err != nil {
			return err
		}
		defer func() { _ = d.Destroy() }()

		if _, err := d.Write(input); err != nil {
			return err
		}
		sum, err := d.Sum()
		if err != nil {
			return err
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return printer.PrintDigest(algorithm, hex.EncodeToString(sum))
	},
}

func init() {
	digestCmd.Flags().StringP("algorithm", "a", "sha256",
		"digest algorithm (sha1, sha224, sha256, sha384, sha512)")
	digestCmd.Flags().StringP("in", "i", "-", "input file, - for stdin")
}

func parseDigestAlgorithm(name string) (backend.DigestAlgorithm, error) {
	switch name {
	case "sha1":
		return backend.DigestSHA1, nil
	case "sha224":
		return backend.DigestSHA224, nil
	case "sha256":
		return backend.DigestSHA256, nil
	case "sha384":
		return backend.DigestSHA384, nil
	case "sha512":
		return backend.DigestSHA512, nil
	default:
		return 0, fmt.Errorf("unknown digest algorithm: %s", name)
	}
}
