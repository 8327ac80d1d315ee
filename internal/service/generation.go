package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edunexus/governance/internal/adapters/aiclient"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/trace"
)

// Idempotency scopes owned by the generation service.
const (
	ScopePlanGenerate      = "teacher.plan.generate"
	ScopeQuestionsGenerate = "student.aiq.generate"
)

const (
	generationSnapshotTTL = 24 * time.Hour
	// questionsExpr keeps generated questions that carry both content and an answer.
	questionsExpr = "questions[?content && correct_answer] || `[]`"
	fallbackPlan  = "# Lesson plan unavailable"
)

// GenerationServiceOptions groups dependencies for GenerationService.
type GenerationServiceOptions struct {
	Idempotency *IdempotencyService // Required
	AI          AICaller            // Required
	Logger      *slog.Logger
}

// GenerationService runs synchronous, idempotent generation calls against the AI service.
type GenerationService struct {
	idem   *IdempotencyService
	ai     AICaller
	logger *slog.Logger
}

// NewGenerationService constructs a new GenerationService.
func NewGenerationService(opts GenerationServiceOptions) (*GenerationService, error) {
	if opts.Idempotency == nil {
		return nil, errors.New("IdempotencyService is required")
	}
	if opts.AI == nil {
		return nil, errors.New("AI client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationService{
		idem:   opts.Idempotency,
		ai:     opts.AI,
		logger: logger.With("component", "generation_service"),
	}, nil
}

// PlanRequest asks for a lesson plan.
type PlanRequest struct {
	Topic        string `json:"topic"`
	GradeLevel   string `json:"gradeLevel"`
	DurationMins int    `json:"durationMins"`
}

// Validate checks the plan request fields.
func (r *PlanRequest) Validate() error {
	r.Topic = strings.TrimSpace(r.Topic)
	r.GradeLevel = strings.TrimSpace(r.GradeLevel)
	switch {
	case r.Topic == "":
		return apperrors.ValidationField("topic", "topic is required")
	case r.GradeLevel == "":
		return apperrors.ValidationField("gradeLevel", "grade level is required")
	case r.DurationMins < 10 || r.DurationMins > 180:
		return apperrors.ValidationField("durationMins", "duration must be between 10 and 180 minutes")
	}
	return nil
}

// QuestionsRequest asks for a generated practice set.
type QuestionsRequest struct {
	Count       int      `json:"count"`
	Subject     string   `json:"subject"`
	Difficulty  string   `json:"difficulty,omitempty"`
	ConceptTags []string `json:"conceptTags,omitempty"`
}

// Validate checks the question request fields and defaults the difficulty to MEDIUM.
func (r *QuestionsRequest) Validate() error {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Difficulty = strings.ToUpper(strings.TrimSpace(r.Difficulty))
	if r.Difficulty == "" {
		r.Difficulty = "MEDIUM"
	}
	switch {
	case r.Count < 1 || r.Count > 20:
		return apperrors.ValidationField("count", "count must be between 1 and 20")
	case r.Subject == "":
		return apperrors.ValidationField("subject", "subject is required")
	case r.Difficulty != "EASY" && r.Difficulty != "MEDIUM" && r.Difficulty != "HARD":
		return apperrors.ValidationField("difficulty", "difficulty must be EASY, MEDIUM or HARD")
	}
	return nil
}

// GenerationResult is the snapshot returned to the client.
type GenerationResult struct {
	Snapshot json.RawMessage
	Replayed bool
}

// GeneratePlan produces a lesson plan for a teacher.
func (s *GenerationService) GeneratePlan(
	ctx context.Context,
	principal model.Principal,
	idemKey string,
	req PlanRequest,
) (GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return GenerationResult{}, err
	}
	ctx, traceID := trace.Ensure(ctx)

	res, err := s.idem.Guard(ctx, GuardRequest{
		Scope:   ScopePlanGenerate,
		Key:     idemKey,
		Payload: map[string]any{"teacherId": principal.UserID, "payload": req},
		TTL:     generationSnapshotTTL,
	}, func(ctx context.Context) (json.RawMessage, error) {
		resp, err := s.ai.Call(ctx, aiclient.OpGeneratePlan, aiclient.Request{
			Body: map[string]any{
				"traceId":        traceID,
				"topic":          req.Topic,
				"gradeLevel":     req.GradeLevel,
				"durationMins":   req.DurationMins,
				"teacherId":      principal.UserID,
				"idempotencyKey": strings.TrimSpace(idemKey),
			},
			TraceID:        traceID,
			IdempotencyKey: idemKey,
		})
		if err != nil {
			return nil, fmt.Errorf("generate plan: %w", err)
		}

		content, err := resp.Search("contentMd")
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read plan response")
		}
		md, _ := content.(string)
		if strings.TrimSpace(md) == "" {
			md = fallbackPlan
		}
		return json.Marshal(map[string]any{
			"topic":        req.Topic,
			"gradeLevel":   req.GradeLevel,
			"durationMins": req.DurationMins,
			"contentMd":    md,
			"traceId":      resp.TraceID,
		})
	})
	if err != nil {
		return GenerationResult{}, err
	}
	s.logger.DebugContext(ctx, "plan generated", "replayed", res.Replayed)
	return GenerationResult(res), nil
}

// GenerateQuestions produces a practice set for a student.
func (s *GenerationService) GenerateQuestions(
	ctx context.Context,
	principal model.Principal,
	idemKey string,
	req QuestionsRequest,
) (GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return GenerationResult{}, err
	}
	ctx, traceID := trace.Ensure(ctx)

	tags := req.ConceptTags
	if tags == nil {
		tags = []string{}
	}
	res, err := s.idem.Guard(ctx, GuardRequest{
		Scope:   ScopeQuestionsGenerate,
		Key:     idemKey,
		Payload: map[string]any{"studentId": principal.UserID, "payload": req},
		TTL:     generationSnapshotTTL,
	}, func(ctx context.Context) (json.RawMessage, error) {
		resp, err := s.ai.Call(ctx, aiclient.OpGenerateQuestions, aiclient.Request{
			Body: map[string]any{
				"traceId":        traceID,
				"studentId":      principal.UserID,
				"count":          req.Count,
				"subject":        req.Subject,
				"difficulty":     req.Difficulty,
				"conceptTags":    tags,
				"idempotencyKey": strings.TrimSpace(idemKey),
			},
			TraceID:        traceID,
			IdempotencyKey: idemKey,
		})
		if err != nil {
			return nil, fmt.Errorf("generate questions: %w", err)
		}

		questions, err := resp.Search(questionsExpr)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read questions response")
		}
		return json.Marshal(map[string]any{
			"subject":    req.Subject,
			"difficulty": req.Difficulty,
			"questions":  questions,
			"traceId":    resp.TraceID,
		})
	})
	if err != nil {
		return GenerationResult{}, err
	}
	s.logger.DebugContext(ctx, "questions generated", "replayed", res.Replayed)
	return GenerationResult(res), nil
}
