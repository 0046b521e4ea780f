package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-invoicing/internal/documents"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// ComputeOptions configures the compute command.
type ComputeOptions struct {
	Source       string
	SourceReader io.Reader
	Resolver     documents.RateResolver
	Locale       language.Tag
	Timeout      time.Duration
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
}

// ComputeCommand reads a document as JSON and prints its derived lines and totals.
// Without a resolver a foreign currency document needs an explicit conversion_rate.
func ComputeCommand(ctx context.Context, opts ComputeOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Locale == language.Und {
		opts.Locale = language.English
	}

	req, err := readComputeRequest(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "compute: %v\n", err)
		return ExitFailure
	}

	store := documents.NewStore(documents.StoreConfig{})
	defer store.Close()
	svc := documents.NewService(documents.ServiceConfig{
		Store:         store,
		Resolver:      opts.Resolver,
		Formatter:     documents.NewFormatter(opts.Locale),
		LookupTimeout: opts.Timeout,
	})
	res, err := svc.Compute(ctx, req)
	if err != nil {
		var verr *httpx.ViolationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				_, _ = fmt.Fprintf(opts.Stderr, "compute: %s\n", v.Message)
			}
			return ExitFailure
		}
		_, _ = fmt.Fprintf(opts.Stderr, "compute: %v\n", err)
		return ExitFailure
	}

	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "compute: encode json: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func readComputeRequest(opts ComputeOptions) (documents.ComputeRequest, error) {
	var in io.Reader
	switch {
	case opts.SourceReader != nil:
		in = opts.SourceReader
	case opts.Source == "-":
		in = opts.Stdin
	case strings.TrimSpace(opts.Source) == "":
		return documents.ComputeRequest{}, errors.New("source file is required")
	default:
		f, err := os.Open(opts.Source)
		if err != nil {
			return documents.ComputeRequest{}, err
		}
		defer f.Close()
		in = f
	}
	var req documents.ComputeRequest
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return documents.ComputeRequest{}, fmt.Errorf("decode document: %w", err)
	}
	return req, nil
}
