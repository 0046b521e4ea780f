package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
)

// FXImportMode enumerates supported execution strategies.
type FXImportMode string

const (
	// FXImportModeDry previews the rates without writing them.
	FXImportModeDry FXImportMode = "dry"
	// FXImportModeApply writes the rates after confirmation.
	FXImportModeApply FXImportMode = "apply"
)

// FXImportOptions configures the import command.
type FXImportOptions struct {
	Source       string
	SourceReader io.Reader
	Mode         FXImportMode
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// FXImportSummary captures the structured outcome.
type FXImportSummary struct {
	Mode    FXImportMode     `json:"mode"`
	Rates   []FXImportedRate `json:"rates"`
	Applied bool             `json:"applied"`
}

// FXImportedRate is one CSV row as it will be stored.
type FXImportedRate struct {
	Currency string `json:"currency"`
	Date     string `json:"date"`
	Rate     string `json:"rate"`
}

// ImportCommand loads "currency,date,rate" rows from a CSV file or stdin into the
// rate store.
func (c *FXOpsCLI) ImportCommand(ctx context.Context, opts FXImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = FXImportModeDry
	}
	mode := FXImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case FXImportModeDry, FXImportModeApply:
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return ExitFailure
	}

	rates, err := loadImportRates(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return ExitFailure
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].Currency == rates[j].Currency {
			return rates[i].RateDate.Before(rates[j].RateDate)
		}
		return rates[i].Currency < rates[j].Currency
	})
	summary := FXImportSummary{Mode: mode, Rates: make([]FXImportedRate, len(rates))}
	for i, rate := range rates {
		summary.Rates[i] = FXImportedRate{Currency: rate.Currency, Date: rate.RateDate.Format(time.DateOnly), Rate: rate.Rate.String()}
	}

	if mode == FXImportModeApply && len(rates) > 0 {
		confirm := opts.Confirm
		if confirm == nil {
			confirm = defaultImportConfirm
		}
		ok, err := confirm(opts.Stdin, opts.Stdout)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: confirmation failed: %v\n", err)
			return ExitFailure
		}
		if !ok {
			_, _ = fmt.Fprintln(opts.Stderr, "fx import: cancelled by user")
			return ExitFailure
		}
		if err := c.store.Upsert(ctx, rates); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: apply failed: %v\n", err)
			return ExitFailure
		}
		summary.Applied = true
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: encode json: %v\n", err)
			return ExitFailure
		}
		return ExitOK
	}
	renderImportHuman(opts.Stdout, summary)
	return ExitOK
}

func loadImportRates(opts FXImportOptions) ([]fx.Rate, error) {
	switch {
	case opts.SourceReader != nil:
		return fx.ParseRatesCSV(opts.SourceReader)
	case opts.Source == "-":
		return fx.ParseRatesCSV(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return nil, fmt.Errorf("source file is required")
	}
	f, err := os.Open(opts.Source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fx.ParseRatesCSV(f)
}

func defaultImportConfirm(in io.Reader, out io.Writer) (bool, error) {
	_, _ = fmt.Fprint(out, "Write these rates to the rate store? [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func renderImportHuman(out io.Writer, summary FXImportSummary) {
	_, _ = fmt.Fprintf(out, "FX import (%s): %d rate(s)\n", summary.Mode, len(summary.Rates))
	for _, rate := range summary.Rates {
		_, _ = fmt.Fprintf(out, " - %s %s %s\n", rate.Currency, rate.Date, rate.Rate)
	}
	if summary.Applied {
		_, _ = fmt.Fprintln(out, "Applied.")
	}
}
