package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/statement-parser/internal/app"
	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/contract"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type debugOutput struct {
	pipeline.Response
	Trace *pipeline.Trace `json:"trace,omitempty"`
}

func main() {
	var (
		debug  = flag.Bool("debug", false, "include pages, blocks, candidates and timings in the output")
		pretty = flag.Bool("pretty", true, "indent the JSON output")
		banks  = flag.String("banks", "", "bank profile YAML (overrides BANKS_CONFIG)")
	)
	flag.Usage = func() {
		printError("usage: parsepdf [flags] <statement.pdf>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	if *banks != "" {
		cfg.Banks.Path = *banks
	}
	// stdout carries the JSON document only
	logger := common.InitLogger(os.Stderr, cfg.Log)

	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor, err := app.NewProcessor(cfg, logger, nil)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	out := debugOutput{}
	res, tr, err := processor.ProcessDebug(ctx, path)
	if err != nil {
		out.Response = pipeline.Failure(err)
	} else {
		out.Response = pipeline.Success(res)
		if verr := contract.Validate(out.Response); verr != nil {
			logger.Warn("parsepdf.contract_mismatch", "error", verr)
		}
	}
	if *debug {
		out.Trace = tr
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if encErr := enc.Encode(out); encErr != nil {
		printError("Error: encode output: %v\n", encErr)
		os.Exit(1)
	}
	if err != nil {
		os.Exit(1)
	}
}
