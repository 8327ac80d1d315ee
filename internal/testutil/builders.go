package testutil

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/edunexus/governance/internal/domain/model"
)

// JobRunRequestBuilder builds CreateJobRunRequest values for tests.
type JobRunRequestBuilder struct {
	req model.CreateJobRunRequest
}

// NewJobRunRequest starts a DOCUMENT_INGEST request with a random business id.
func NewJobRunRequest() *JobRunRequestBuilder {
	return &JobRunRequestBuilder{req: model.CreateJobRunRequest{
		JobType:    model.JobTypeDocumentIngest,
		BusinessID: uuid.NewString(),
		Payload:    json.RawMessage(`{"filename":"notes.pdf"}`),
	}}
}

// WithType sets the job type.
func (b *JobRunRequestBuilder) WithType(jobType model.JobType) *JobRunRequestBuilder {
	b.req.JobType = jobType
	return b
}

// WithBusinessID sets the owning entity id.
func (b *JobRunRequestBuilder) WithBusinessID(id string) *JobRunRequestBuilder {
	b.req.BusinessID = id
	return b
}

// WithPayload sets the payload.
func (b *JobRunRequestBuilder) WithPayload(payload string) *JobRunRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// Build returns the request.
func (b *JobRunRequestBuilder) Build() *model.CreateJobRunRequest {
	req := b.req
	return &req
}
