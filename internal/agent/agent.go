// Package agent orchestrates the full question-answering pipeline: intent
// classification, plan synthesis, execution, response composition, media
// and chart resolution, translation, and history/archive bookkeeping. The
// pipeline is built so a reply always comes back well-formed; only a defect
// in the pipeline itself produces the fixed error reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dugoutai/dugout/internal/executor"
	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/media"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/respond"
	"github.com/dugoutai/dugout/internal/session"
	"github.com/dugoutai/dugout/internal/store"
	"github.com/dugoutai/dugout/internal/telemetry"
	"github.com/dugoutai/dugout/internal/translate"
)

// UserData carries per-request user context.
type UserData struct {
	UserID   string `json:"user_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// Request is one incoming chat message.
type Request struct {
	Message  string         `json:"message"`
	History  []session.Turn `json:"history,omitempty"`
	UserData UserData       `json:"user_data,omitempty"`
}

// Reply is the full response contract. It is always well-formed, including
// on total failure.
type Reply struct {
	Message      string                 `json:"message"`
	Conversation bool                   `json:"conversation"`
	DataType     string                 `json:"data_type"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Context      *intent.Analysis       `json:"context,omitempty"`
	Suggestions  []string               `json:"suggestions"`
	Media        *media.Plan            `json:"media,omitempty"`
	Chart        *media.Chart           `json:"chart,omitempty"`
}

// Agent wires the pipeline components.
type Agent struct {
	classifier  *intent.Classifier
	synthesizer *planner.Synthesizer
	executor    *executor.Executor
	composer    *respond.Composer
	media       *media.Resolver
	chart       *media.ChartResolver
	translator  *translate.Translator
	history     session.History
	archive     *store.Archive
	telemetry   *telemetry.Telemetry
	tracer      trace.Tracer
	logger      *log.Logger
}

// New assembles an agent. archive may be nil when Postgres is not
// configured.
func New(
	classifier *intent.Classifier,
	synthesizer *planner.Synthesizer,
	exec *executor.Executor,
	composer *respond.Composer,
	mediaResolver *media.Resolver,
	chartResolver *media.ChartResolver,
	translator *translate.Translator,
	history session.History,
	archive *store.Archive,
	tel *telemetry.Telemetry,
) *Agent {
	return &Agent{
		classifier:  classifier,
		synthesizer: synthesizer,
		executor:    exec,
		composer:    composer,
		media:       mediaResolver,
		chart:       chartResolver,
		translator:  translator,
		history:     history,
		archive:     archive,
		telemetry:   tel,
		tracer:      otel.Tracer("dugout/agent"),
		logger:      log.New(log.Writer(), "[AGENT] ", log.LstdFlags),
	}
}

// ProcessMessage runs the full pipeline for one message and always returns
// a well-formed reply.
func (a *Agent) ProcessMessage(ctx context.Context, req Request) (reply Reply) {
	requestID := uuid.NewString()
	start := time.Now()

	ctx, span := a.tracer.Start(ctx, "agent.process_message", trace.WithAttributes(
		attribute.String("request.id", requestID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("request %s panicked: %v", requestID, r)
			reply = errorReply(fmt.Errorf("internal error: %v", r))
		}
		a.finish(ctx, requestID, req, reply, time.Since(start))
	}()

	history := a.loadHistory(ctx, req)
	historyText := session.Render(history)

	analysis := a.classifier.Analyze(ctx, req.Message, historyText)
	span.SetAttributes(
		attribute.String("intent.type", analysis.Intent.Type),
		attribute.Bool("intent.requires_data", analysis.Context.RequiresData),
	)

	if !analysis.Context.RequiresData || analysis.Intent.Type == intent.TypeConversation {
		return a.converse(ctx, req, analysis, historyText)
	}
	return a.answer(ctx, req, analysis)
}

// converse handles messages that need no data retrieval.
func (a *Agent) converse(ctx context.Context, req Request, analysis intent.Analysis, historyText string) Reply {
	text := a.composer.Conversation(ctx, req.Message, historyText)
	suggestions := a.composer.Suggestions(ctx, req.Message, analysis)

	reply := Reply{
		Message:      text,
		Conversation: true,
		DataType:     intent.TypeConversation,
		Context:      &analysis,
		Suggestions:  suggestions,
	}
	return a.localize(ctx, reply, req.UserData.Language)
}

// answer runs the data pipeline: plan, execute, compose, decorate.
func (a *Agent) answer(ctx context.Context, req Request, analysis intent.Analysis) Reply {
	plan := a.synthesizer.Plan(ctx, analysis)
	results, outcomes := a.executor.Execute(ctx, plan)

	formatted := a.composer.FormatResponse(ctx, req.Message, analysis, results)
	suggestions := a.composer.Suggestions(ctx, req.Message, analysis)

	data := map[string]interface{}{
		"results": results,
		"steps":   outcomes,
	}
	if formatted.Details != nil {
		data["details"] = formatted.Details
	}

	reply := Reply{
		Message:     formatted.Summary,
		DataType:    analysis.Intent.Type,
		Data:        data,
		Context:     &analysis,
		Suggestions: suggestions,
	}

	if mediaPlan := a.media.Resolve(ctx, req.Message, analysis, results); !mediaPlan.Empty() {
		reply.Media = &mediaPlan
	}
	if chart := a.chart.Resolve(ctx, req.Message, results); chart.RequiresChart {
		reply.Chart = &chart
	}
	return a.localize(ctx, reply, req.UserData.Language)
}

// localize translates the user-visible fields when the user's language is
// not English.
func (a *Agent) localize(ctx context.Context, reply Reply, language string) Reply {
	translated := a.translator.Fields(ctx, map[string]string{"message": reply.Message}, language)
	reply.Message = translated["message"]
	reply.Suggestions = a.translator.Strings(ctx, reply.Suggestions, language)
	return reply
}

// loadHistory merges stored history with any history supplied in the
// request itself.
func (a *Agent) loadHistory(ctx context.Context, req Request) []session.Turn {
	var turns []session.Turn
	if a.history != nil && req.UserData.UserID != "" {
		stored, err := a.history.Recent(ctx, req.UserData.UserID)
		if err != nil {
			a.logger.Printf("loading history for %s failed: %v", req.UserData.UserID, err)
		} else {
			turns = stored
		}
	}
	return append(turns, req.History...)
}

// finish records history, archive, and telemetry for the request.
func (a *Agent) finish(ctx context.Context, requestID string, req Request, reply Reply, elapsed time.Duration) {
	if a.history != nil && req.UserData.UserID != "" {
		now := time.Now()
		if err := a.history.Append(ctx, req.UserData.UserID, session.Turn{Role: "user", Content: req.Message, Timestamp: now}); err != nil {
			a.logger.Printf("appending history failed: %v", err)
		}
		if err := a.history.Append(ctx, req.UserData.UserID, session.Turn{Role: "assistant", Content: reply.Message, Timestamp: now}); err != nil {
			a.logger.Printf("appending history failed: %v", err)
		}
	}

	if a.archive != nil {
		if payload, err := json.Marshal(reply); err == nil {
			a.archive.Save(ctx, store.Exchange{
				ID:         requestID,
				UserID:     req.UserData.UserID,
				Message:    req.Message,
				Reply:      payload,
				DataType:   reply.DataType,
				DurationMS: elapsed.Milliseconds(),
			})
		}
	}

	stepsPlanned, stepsCompleted := 0, 0
	if steps, ok := reply.Data["steps"].([]executor.StepOutcome); ok {
		stepsPlanned = len(steps)
		for _, s := range steps {
			if s.Success {
				stepsCompleted++
			}
		}
	}
	a.telemetry.RecordRequestEvent(ctx, telemetry.RequestEvent{
		ID:             requestID,
		Message:        req.Message,
		ProcessingTime: elapsed,
		Success:        reply.DataType != "error",
		StepsPlanned:   stepsPlanned,
		StepsCompleted: stepsCompleted,
	})
}

// errorReply is the fixed catastrophic-failure response.
func errorReply(err error) Reply {
	message, dataType, data, suggestions := respond.ErrorReply(err)
	return Reply{
		Message:     message,
		DataType:    dataType,
		Data:        data,
		Suggestions: suggestions,
	}
}
