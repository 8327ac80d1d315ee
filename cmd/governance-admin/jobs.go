package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/edunexus/governance/internal/bootstrap"
	"github.com/edunexus/governance/internal/data"
	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/service"
)

type jobOptions struct {
	ID         string
	BusinessID string
	JSON       bool
}

func parseJobFlags(args []string) (jobOptions, error) {
	fs := flag.NewFlagSet("job", flag.ContinueOnError)
	opts := jobOptions{}
	fs.StringVar(&opts.ID, "id", "", "job run id")
	fs.StringVar(&opts.BusinessID, "business-id", "", "owning entity id (e.g. a document id)")
	fs.BoolVar(&opts.JSON, "json", false, "print raw JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	opts.BusinessID = strings.TrimSpace(opts.BusinessID)
	if (opts.ID == "") == (opts.BusinessID == "") {
		return opts, errors.New("exactly one of -id or -business-id is required")
	}
	return opts, nil
}

func runJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags(args)
	if err != nil {
		return err
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:   data.NewJobRunRepo(db, data.JobRunRepoOptions{Logger: cmdCtx.Logger}),
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	var runs []*model.JobRun
	if opts.ID != "" {
		run, getErr := jobs.GetByID(cmdCtx.Ctx, opts.ID)
		if getErr != nil {
			return getErr
		}
		runs = []*model.JobRun{run}
	} else {
		runs, err = jobs.ListByBusinessID(cmdCtx.Ctx, opts.BusinessID)
		if err != nil {
			return err
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return renderJobRuns(cmdCtx.Out, runs)
}

func renderJobRuns(w io.Writer, runs []*model.JobRun) error {
	if len(runs) == 0 {
		return writeln(w, "no job runs found")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tTYPE\tBUSINESS ID\tSTATUS\tCREATED (UTC)\tDURATION\tERROR"); err != nil {
		return fmt.Errorf("write job runs header row: %w", err)
	}
	for _, run := range runs {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.JobType,
			run.BusinessID,
			run.Status,
			run.CreatedAt.UTC().Format(time.RFC3339),
			formatDuration(run.Duration()),
			errorSummary(run.ErrorMessage),
		); err != nil {
			return fmt.Errorf("write job run row: %w", err)
		}
	}
	return tw.Flush()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

const maxErrorWidth = 60

func errorSummary(msg *string) string {
	if msg == nil || *msg == "" {
		return "-"
	}
	s := strings.ReplaceAll(*msg, "\n", " ")
	if len(s) > maxErrorWidth {
		return s[:maxErrorWidth-3] + "..."
	}
	return s
}
