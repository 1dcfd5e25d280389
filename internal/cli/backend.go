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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-libcrypto/pkg/provider"
)

// backendCmd reports which native library the resolver found.
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Show the loaded native backend",
	Long:  `Resolve and load the native libcrypto, then print its banner, version code and FIPS status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := provider.New(cfg)
		defer p.Close()

		code, ok := p.IsBackendAvailable()
		if !ok {
			return fmt.Errorf("no compatible native backend found")
		}
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return printer.PrintBackendInfo(p.VersionText(), code, p.IsFIPSBackend())
	},
}
