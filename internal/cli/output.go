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
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintBackendInfo prints the loaded backend's identity.
func (p *Printer) PrintBackendInfo(banner string, versionCode uint64, fips bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"banner":       banner,
			"version_code": fmt.Sprintf("0x%x", versionCode),
			"fips":         fips,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Backend:      %s\n", banner)
		fmt.Fprintf(p.writer, "Version code: 0x%x\n", versionCode)
		fmt.Fprintf(p.writer, "FIPS mode:    %t\n", fips)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintDigest prints one digest result.
func (p *Printer) PrintDigest(algorithm, hexSum string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"algorithm": algorithm,
			"digest":    hexSum,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%s  %s\n", hexSum, algorithm)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON marshals v with indentation to the printer's writer.
func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
