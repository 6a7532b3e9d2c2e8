// Package format renders a repository report for human or machine
// consumption.
package format

import (
	"encoding/json"
	"fmt"

	"github.com/repometrics/github-report/internal/domain"
)

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// SupportedFormats lists the formats accepted by Render.
var SupportedFormats = []string{FormatJSON, FormatConsole}

// Render serializes the report in the requested format.
func Render(report *domain.RepositoryReport, format string) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal report: %w", err)
		}
		return string(data), nil
	case FormatConsole:
		return renderConsole(report), nil
	default:
		return "", fmt.Errorf("unsupported format %q (supported: %v)", format, SupportedFormats)
	}
}
