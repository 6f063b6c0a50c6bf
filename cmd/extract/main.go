// Command extract runs the extraction pipeline on a local PDF and prints the
// merged statement as JSON, with the summary on stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"

	"finextract/internal/app"
	"finextract/internal/config"
	"finextract/internal/export"
	"finextract/internal/logging"
	"finextract/internal/pipeline"
	"finextract/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "extract:", err)
		os.Exit(1)
	}
}

func run() error {
	ticker := flag.String("ticker", "", "ticker symbol the filing belongs to (required)")
	out := flag.String("out", "", "write the statement to this file instead of stdout (.json, .xlsx or .csv)")
	diagnostics := flag.Bool("diagnostics", false, "include run diagnostics in the JSON output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: extract -ticker SYMBOL [-out FILE] [-diagnostics] filing.pdf\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 || *ticker == "" {
		flag.Usage()
		return fmt.Errorf("a ticker and exactly one PDF path are required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.Log)

	subject, err := service.NormalizeSubject(*ticker)
	if err != nil {
		return err
	}
	path := flag.Arg(0)
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Async analysis needs object storage, so the CLI runs without it.
	cfg.Textract.Async = false
	pipe, err := app.BuildPipeline(ctx, cfg, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	progress := func(done, total int, message string) {
		log.Info().Int("done", done).Int("total", total).Msg(message)
	}
	res, err := pipe.Run(ctx, doc, filepath.Base(path), subject, progress)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s\n(%s)\n", res.Summary, time.Since(start).Round(time.Millisecond))

	return write(res, *out, subject, *diagnostics)
}

func write(res *pipeline.Result, out, subject string, withDiagnostics bool) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		data, err := export.XLSX(res.Statement)
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	case ".csv":
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		return export.CSV(f, res.Statement)
	}

	var payload any
	if withDiagnostics {
		payload = res
	} else {
		payload = map[string]any{"subject": subject, "statement": res.Statement, "summary": res.Summary}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0o644)
}
