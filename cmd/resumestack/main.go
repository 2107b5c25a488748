// resumestack is the command-line front end: sign in to Google, parse a
// single resume, run batch jobs against a Drive folder and inspect or
// export their results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sourcestack/resume-batch/internal/auth"
	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/document"
	"github.com/sourcestack/resume-batch/internal/drive"
	"github.com/sourcestack/resume-batch/internal/entity"
	"github.com/sourcestack/resume-batch/internal/export"
	"github.com/sourcestack/resume-batch/internal/jobstore"
	"github.com/sourcestack/resume-batch/internal/orchestrator"
	"github.com/sourcestack/resume-batch/internal/sheets"
)

const usage = `usage: resumestack <command> [flags]

commands:
  signin                      run the interactive Google sign-in flow
  signout                     drop the cached Google token
  parse   -file <path>        extract fields from one local resume
  batch   -folder <id> [-sheet <id>] [-wait]
                              queue a batch job for a Drive folder
  status  -job <id>           print the status of a job
  results -job <id>           print the candidates of a finished job
  list                        print every retained job, newest first
  cancel  -job <id>           cancel a pending or running job
  export  -job <id> [-out <path>]
                              write a job's results to an XLSX file
`

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig().Sanitized()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *common.Config
	logger   *slog.Logger
	store    *jobstore.Store
	tokens   *auth.Manager
	service  *orchestrator.Service
	exporter *export.Service
}

func newApp(cfg *common.Config, logger *slog.Logger) (*app, error) {
	store, err := jobstore.NewStore(cfg.Jobs.DataDir, cfg.Jobs.RetentionHours, logger)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewManager(cfg.Google, logger)

	pipeline := document.NewPDFPipeline(
		document.NewPdftotextExtractor(cfg.OCR, logger),
		document.NewTesseractOCR(cfg.OCR, logger),
	)
	parser := document.NewParser(pipeline, logger)

	driveClient := drive.NewClient(nil, logger)
	service := orchestrator.New(
		cfg.Batch,
		store,
		tokens,
		driveClient,
		driveClient,
		sheets.NewClient(nil, logger),
		parser,
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		tokens:   tokens,
		service:  service,
		exporter: export.NewService(store, logger),
	}, nil
}

func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.service.Close(shutdownCtx)
	if err := a.store.Close(); err != nil {
		a.logger.Warn("jobstore.close_failed", "error", err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "signin":
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		if err := a.tokens.SignIn(ctx); err != nil {
			return err
		}
		fmt.Println("signed in")
		return nil

	case "signout":
		if err := a.tokens.SignOut(); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil

	case "parse":
		fs := flag.NewFlagSet("parse", flag.ExitOnError)
		file := fs.String("file", "", "path to a PDF or DOCX resume (required)")
		_ = fs.Parse(args)
		if *file == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		result := a.service.ParseSingle(ctx, filepath.Base(*file), data)
		return printJSON(result)

	case "batch":
		fs := flag.NewFlagSet("batch", flag.ExitOnError)
		folder := fs.String("folder", "", "Drive folder id (required)")
		sheet := fs.String("sheet", "", "existing spreadsheet id (optional)")
		wait := fs.Bool("wait", false, "block until the job reaches a terminal state")
		_ = fs.Parse(args)
		if *folder == "" {
			return fmt.Errorf("--folder is required")
		}

		jobID, err := a.service.StartBatchJob(ctx, entity.BatchRequest{
			FolderID:      *folder,
			SpreadsheetID: *sheet,
		})
		if err != nil {
			return err
		}
		fmt.Println(jobID)

		if !*wait {
			return nil
		}
		return a.waitForJob(ctx, jobID)

	case "status":
		jobID, err := jobIDArg("status", args)
		if err != nil {
			return err
		}
		status, err := a.service.GetJobStatus(ctx, jobID)
		if err != nil {
			return err
		}
		return printJSON(status)

	case "results":
		jobID, err := jobIDArg("results", args)
		if err != nil {
			return err
		}
		results, err := a.service.GetJobResults(ctx, jobID)
		if err != nil {
			return err
		}
		return printJSON(results)

	case "list":
		jobs, err := a.service.ListJobs(ctx)
		if err != nil {
			return err
		}
		return printJSON(jobs)

	case "cancel":
		jobID, err := jobIDArg("cancel", args)
		if err != nil {
			return err
		}
		if err := a.service.CancelJob(ctx, jobID); err != nil {
			return err
		}
		fmt.Println("cancel requested")
		return nil

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		jobID := fs.String("job", "", "job id (required)")
		out := fs.String("out", "", "output XLSX path (default <job id>.xlsx)")
		_ = fs.Parse(args)
		if *jobID == "" {
			return fmt.Errorf("--job is required")
		}
		if *out == "" {
			*out = *jobID + ".xlsx"
		}
		data, err := a.exporter.ExportJobXLSX(ctx, *jobID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		fmt.Println(*out)
		return nil

	default:
		printError(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// waitForJob polls until the job is terminal, cancelling it when the
// context is interrupted.
func (a *app) waitForJob(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			// Best effort: the job keeps its partial results either way.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.service.CancelJob(cancelCtx, jobID)
			cancel()
			if err != nil {
				a.logger.Warn("batch.cancel_failed", "job_id", jobID, "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := a.service.GetJobStatus(context.Background(), jobID)
		if err != nil {
			return err
		}
		if status.Progress != lastProgress {
			lastProgress = status.Progress
			a.logger.Info("batch.progress",
				"job_id", jobID,
				"state", status.State,
				"progress", status.Progress,
				"processed", status.ProcessedFiles,
				"total", status.TotalFiles,
			)
		}
		if status.State.Terminal() {
			return printJSON(status)
		}
	}
}

func jobIDArg(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	jobID := fs.String("job", "", "job id (required)")
	_ = fs.Parse(args)
	if *jobID == "" {
		return "", fmt.Errorf("--job is required")
	}
	return *jobID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
