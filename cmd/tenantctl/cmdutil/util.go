// Package cmdutil provides shared utilities for tenantctl commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mkarlsen/tenantd/internal/cli/output"
	"github.com/mkarlsen/tenantd/internal/cli/prompt"
	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/pkg/config"
	"github.com/mkarlsen/tenantd/pkg/server"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Config  string
	Output  string
	NoColor bool
	Verbose bool
}

// WithServer loads configuration, builds the tenantd components, runs fn,
// and closes the infrastructure connections afterwards.
//
// tenantctl drives the orchestrator, lock service, and checkpoint service
// directly against the shared registry, Redis, and blob storage, so every
// invocation is a short-lived peer of the server process. The background
// workers are never started here.
func WithServer(fn func(ctx context.Context, srv *server.Server) error) error {
	cfg, err := config.MustLoad(Flags.Config)
	if err != nil {
		return err
	}

	// Keep component logging out of command output unless asked for.
	level := "WARN"
	if Flags.Verbose {
		level = cfg.Logging.Level
	}
	if err := logger.Init(logger.Config{Level: level, Format: cfg.Logging.Format, Output: "stderr"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	srv, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	return fn(ctx, srv)
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// IsColorDisabled returns whether color output is disabled.
func IsColorDisabled() bool {
	return Flags.NoColor
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResource prints a resource in the specified format.
// For table format, it uses the provided tableRenderer. For JSON/YAML, it outputs the resource.
func PrintResource(w io.Writer, data any, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	printer := output.NewPrinter(os.Stdout, format, !IsColorDisabled())
	printer.Success(msg)
}

// RunWithConfirmation prompts for confirmation (unless force is true) and runs fn.
func RunWithConfirmation(label string, force bool, successMsg string, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(label, force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	PrintSuccess(successMsg)
	return nil
}

// ParseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings.
func ParseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
// Useful for table display where empty fields should show "-".
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// FormatCredits renders a budget amount for table display.
func FormatCredits(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
