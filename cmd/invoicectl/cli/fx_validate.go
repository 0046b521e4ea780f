package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
)

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	Currencies []string
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FXValidateSummary describes the JSON response for fx validate.
type FXValidateSummary struct {
	OK      bool              `json:"ok"`
	From    string            `json:"from"`
	To      string            `json:"to"`
	Checked int               `json:"checked"`
	Gaps    []FXValidationGap `json:"gaps"`
}

// FXValidationGap lists the business days a currency has no stored rate for.
type FXValidationGap struct {
	Currency string   `json:"currency"`
	Missing  []string `json:"missing"`
}

// ValidateCommand checks stored rates for gaps and prints the outcome. It exits with
// ExitGaps when any business day lacks a rate.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Currencies) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "fx validate: at least one --currency is required")
		return ExitFailure
	}
	from, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.From))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return ExitFailure
	}
	to, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.To))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return ExitFailure
	}
	reqs := make([]fx.Requirement, 0, len(opts.Currencies))
	for _, code := range opts.Currencies {
		reqs = append(reqs, fx.Requirement{Currency: code, From: from, To: to})
	}
	result, err := fx.Validate(ctx, c.store, reqs)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return ExitFailure
	}

	summary := buildValidateSummary(from, to, result)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx validate: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderValidateHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitGaps
	}
	return ExitOK
}

func buildValidateSummary(from, to time.Time, result fx.Result) FXValidateSummary {
	gaps := make([]FXValidationGap, 0, len(result.Gaps))
	for _, gap := range result.Gaps {
		days := make([]string, len(gap.Missing))
		for i, day := range gap.Missing {
			days[i] = day.Format(time.DateOnly)
		}
		gaps = append(gaps, FXValidationGap{Currency: gap.Currency, Missing: days})
	}
	return FXValidateSummary{
		OK:      len(gaps) == 0,
		From:    from.Format(time.DateOnly),
		To:      to.Format(time.DateOnly),
		Checked: result.Checked,
		Gaps:    gaps,
	}
}

func renderValidateHuman(out io.Writer, summary FXValidateSummary) {
	_, _ = fmt.Fprintf(out, "FX validation %s to %s, %d currencies checked\n", summary.From, summary.To, summary.Checked)
	if summary.OK {
		_, _ = fmt.Fprintln(out, "All business days have a stored rate.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d currency gap(s) detected:\n", len(summary.Gaps))
	for _, gap := range summary.Gaps {
		_, _ = fmt.Fprintf(out, " - %s missing %s\n", gap.Currency, strings.Join(gap.Missing, ", "))
	}
}
