package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRunStatus_TerminalAndValid(t *testing.T) {
	tests := []struct {
		status   JobRunStatus
		valid    bool
		terminal bool
	}{
		{JobRunStatusPending, true, false},
		{JobRunStatusRunning, true, false},
		{JobRunStatusSucceeded, true, true},
		{JobRunStatusFailed, true, true},
		{JobRunStatusDeadLetter, true, true},
		{JobRunStatus("RETRYING"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
	assert.Len(t, TerminalJobRunStatuses(), 3)
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte(" document_ingest ")))
	assert.Equal(t, JobTypeDocumentIngest, jt)

	err := jt.UnmarshalText([]byte("browser"))
	require.ErrorIs(t, err, ErrInvalidJobType)
}

func TestCreateJobRunRequest_Validate(t *testing.T) {
	valid := CreateJobRunRequest{
		JobType:    JobTypeDocumentIngest,
		BusinessID: "0b6f9f55-2b54-4c9b-9df3-91f1c1d3d1a0",
		Payload:    json.RawMessage(`{"documentId":"x"}`),
	}
	require.NoError(t, valid.Validate())

	badType := valid
	badType.JobType = "unknown"
	require.ErrorIs(t, badType.Validate(), ErrInvalidJobType)

	badID := valid
	badID.BusinessID = "doc-1"
	require.Error(t, badID.Validate())

	badPayload := valid
	badPayload.Payload = json.RawMessage(`{`)
	require.Error(t, badPayload.Validate())
}

func TestJobRun_Duration(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	assert.Zero(t, (&JobRun{}).Duration())
	assert.Equal(t, 90*time.Second, (&JobRun{StartedAt: &start, FinishedAt: &end}).Duration())
}

func TestEffectiveIdempotencyTTL(t *testing.T) {
	assert.Equal(t, MinIdempotencyTTL, EffectiveIdempotencyTTL(10*time.Second))
	assert.Equal(t, MinIdempotencyTTL, EffectiveIdempotencyTTL(0))
	assert.Equal(t, 24*time.Hour, EffectiveIdempotencyTTL(24*time.Hour))
}

func TestIdempotencyRecord_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := IdempotencyRecord{ExpiresAt: now.Add(time.Second)}
	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(time.Second)))
}

func TestPrincipal_Active(t *testing.T) {
	assert.True(t, Principal{UserID: "u1", Role: RoleTeacher, Status: "ACTIVE"}.Active())
	assert.False(t, Principal{UserID: "u1", Status: "disabled"}.Active())
	assert.False(t, Principal{}.Active())
	assert.Equal(t, RoleAdmin, ParseRole(" admin "))
}
