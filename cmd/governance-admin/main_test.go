package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/domain/model"
)

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "job "), strings.Index(out, "migrate"))
}

func TestParseJobFlags(t *testing.T) {
	opts, err := parseJobFlags([]string{"-id", " run-1 "})
	require.NoError(t, err)
	assert.Equal(t, "run-1", opts.ID)

	opts, err = parseJobFlags([]string{"-business-id", "doc-1", "-json"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", opts.BusinessID)
	assert.True(t, opts.JSON)

	_, err = parseJobFlags(nil)
	require.Error(t, err)
	_, err = parseJobFlags([]string{"-id", "a", "-business-id", "b"})
	require.Error(t, err)
}

func TestParsePurgeFlags(t *testing.T) {
	opts, err := parsePurgeFlags(nil, config.ReaperConfig{BatchSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, opts.BatchSize)

	_, err = parsePurgeFlags([]string{"-batch", "0"}, config.ReaperConfig{BatchSize: 500})
	require.Error(t, err)
}

func TestParseMigrateFlagsDefaultsTimeout(t *testing.T) {
	opts, err := parseMigrateFlags([]string{"-timeout", "0s"})
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
}

func TestRenderJobRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	msg := "ai service unavailable after 4 attempts"
	runs := []*model.JobRun{
		{
			ID:           "run-1",
			JobType:      model.JobTypeDocumentIngest,
			BusinessID:   "doc-1",
			Status:       model.JobRunStatusDeadLetter,
			CreatedAt:    started,
			StartedAt:    &started,
			FinishedAt:   &finished,
			ErrorMessage: &msg,
		},
		{
			ID:         "run-2",
			JobType:    model.JobTypeDocumentIngest,
			BusinessID: "doc-1",
			Status:     model.JobRunStatusPending,
			CreatedAt:  started,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderJobRuns(&buf, runs))
	out := buf.String()

	assert.Contains(t, out, "BUSINESS ID")
	assert.Contains(t, out, "DEAD_LETTER")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, msg)
	assert.Contains(t, out, "2026-03-01T10:00:00Z")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestRenderJobRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobRuns(&buf, nil))
	assert.Equal(t, "no job runs found\n", buf.String())
}

func TestErrorSummaryTruncates(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := errorSummary(&long)
	assert.Len(t, got, maxErrorWidth)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "-", errorSummary(nil))
}
