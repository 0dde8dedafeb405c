// Package rag coordinates the retrieval-augmented generation pipeline:
// retrieve context, assemble the prompt, invoke the completion
// provider, persist the new turn.
//
// Each request moves strictly through Retrieving, Assembling,
// Generating, Persisting. Nothing is written before Persisting, so a
// failure in any earlier stage leaves both stores untouched. The two
// stores (relational log, vector index) are not updated transactionally;
// a partial write is reported distinctly via *PersistError and repaired
// later through Reconcile.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/concierge-ai/concierge/internal/conversation"
	"github.com/concierge-ai/concierge/internal/embed"
	"github.com/concierge-ai/concierge/internal/observability"
	"github.com/concierge-ai/concierge/internal/profile"
	"github.com/concierge-ai/concierge/internal/prompt"
	"github.com/concierge-ai/concierge/internal/vector"
)

// ErrProviderUnavailable indicates the completion provider or the
// vector index service failed; the request fails without generating.
var ErrProviderUnavailable = errors.New("provider unavailable")

// DefaultMaxResults caps retrieval when no override is configured.
const DefaultMaxResults = 5

// ProfileStore fetches registered user profiles.
type ProfileStore interface {
	GetUser(ctx context.Context, userID string) (profile.User, error)
}

// ConversationLog records turns append-only.
type ConversationLog interface {
	AppendTurn(ctx context.Context, t conversation.Turn) error
	ListTurns(ctx context.Context, userID string) ([]conversation.Turn, error)
}

// Config contains all required parameters for the Orchestrator.
type Config struct {
	Profiles  ProfileStore
	Log       ConversationLog
	Index     vector.Index
	Embedder  embed.Embedder
	Completer Completer

	// MaxResults caps vector retrieval (0 = DefaultMaxResults).
	MaxResults int

	// Logger (nil = slog.Default()).
	Logger *slog.Logger
	// Metrics (nil = not recorded).
	Metrics *observability.Metrics
}

// Completer produces a completion for an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// validate checks that all required collaborators are present.
func (cfg Config) validate() error {
	if cfg.Profiles == nil {
		return errors.New("profile store is required")
	}
	if cfg.Log == nil {
		return errors.New("conversation log is required")
	}
	if cfg.Index == nil {
		return errors.New("vector index is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	return nil
}

// Orchestrator runs the assist pipeline.
//
// Orchestrator is stateless across requests and safe for concurrent
// use; concurrent requests for the same user may interleave, producing
// independent turns.
type Orchestrator struct {
	profiles   ProfileStore
	log        ConversationLog
	index      vector.Index
	embedder   embed.Embedder
	completer  Completer
	maxResults int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		profiles:   cfg.Profiles,
		log:        cfg.Log,
		index:      cfg.Index,
		embedder:   cfg.Embedder,
		completer:  cfg.Completer,
		maxResults: maxResults,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Answer runs one query through the pipeline and returns the generated
// response text.
//
// Error contract:
//   - profile.ErrUnknownUser: the user was never registered; nothing
//     was generated or written.
//   - prompt.ErrMalformedPreferences: stored preferences are unusable.
//   - ErrProviderUnavailable: the vector index or completion service
//     failed before any store was written.
//   - *PersistError: generation succeeded but recording it did not;
//     the response text is still returned alongside the error.
func (o *Orchestrator) Answer(ctx context.Context, userID, query string) (string, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.AssistDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Retrieving
	user, err := o.profiles.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrUnknownUser) {
			o.count(observability.OutcomeUnknownUser)
			return "", err
		}
		o.count(observability.OutcomeError)
		return "", fmt.Errorf("fetching profile: %w", err)
	}

	queryVecs, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		o.count(observability.OutcomeError)
		return "", fmt.Errorf("embedding query: %w", err)
	}

	relevant, err := o.index.Query(ctx, queryVecs[0], map[string]string{"user_id": userID}, o.maxResults)
	if err != nil {
		o.count(observability.OutcomeProviderError)
		return "", fmt.Errorf("%w: querying vector index: %v", ErrProviderUnavailable, err)
	}

	// Assembling
	promptText, err := prompt.Assemble(user, relevant, query)
	if err != nil {
		o.count(observability.OutcomeError)
		return "", err
	}

	// Generating; no store is mutated in this stage.
	response, err := o.completer.Complete(ctx, promptText)
	if err != nil {
		o.count(observability.OutcomeProviderError)
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	// Persisting. A failure here does not withhold the response: the
	// text was already produced, so the caller gets it together with
	// the persistence error.
	if perr := o.persist(ctx, userID, query, response); perr != nil {
		if perr.Partial() {
			o.count(observability.OutcomePartialPersist)
			o.persistFailure(observability.PersistPartial)
		} else {
			o.count(observability.OutcomeError)
			o.persistFailure(observability.PersistTotal)
		}
		o.logger.Error("turn persistence failed",
			"turn_id", perr.TurnID,
			"log_written", perr.LogWritten,
			"vector_written", perr.VectorWritten,
			"error", perr.Err,
		)
		return response, perr
	}

	o.count(observability.OutcomeOK)
	return response, nil
}

// persist assigns identity to the turn and writes it to both stores.
// The writes are independent: one store failing does not stop the
// attempt on the other.
func (o *Orchestrator) persist(ctx context.Context, userID, query, response string) *PersistError {
	turn := conversation.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Content:   conversation.EncodeContent(query, response),
	}

	logErr := o.log.AppendTurn(ctx, turn)

	var vecErr error
	vecs, vecErr := o.embedder.Embed(ctx, []string{turn.Content})
	if vecErr == nil {
		vecErr = o.index.Upsert(ctx, vector.Record{
			ID:       turn.ID,
			Document: turn.Content,
			Vector:   vecs[0],
			Metadata: map[string]string{
				"user_id":   userID,
				"timestamp": turn.Timestamp.Format(time.RFC3339),
			},
		})
	}

	if logErr == nil && vecErr == nil {
		o.logger.Debug("persisted turn", "turn_id", turn.ID, "user_id", userID)
		return nil
	}

	return &PersistError{
		TurnID:        turn.ID,
		LogWritten:    logErr == nil,
		VectorWritten: vecErr == nil,
		Err:           errors.Join(logErr, vecErr),
	}
}

func (o *Orchestrator) count(outcome string) {
	if o.metrics != nil {
		o.metrics.AssistRequests.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) persistFailure(kind string) {
	if o.metrics != nil {
		o.metrics.PersistFailures.WithLabelValues(kind).Inc()
	}
}

// PersistError reports a failed attempt to record a generated turn.
// LogWritten and VectorWritten indicate which of the two stores took
// the write; exactly one true means the stores are now inconsistent
// for this turn until reconciled.
type PersistError struct {
	TurnID        string
	LogWritten    bool
	VectorWritten bool
	Err           error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting turn %s (log written: %t, vector written: %t): %v",
		e.TurnID, e.LogWritten, e.VectorWritten, e.Err)
}

// Unwrap exposes the underlying store errors.
func (e *PersistError) Unwrap() error { return e.Err }

// Partial reports whether exactly one of the two stores was written.
func (e *PersistError) Partial() bool { return e.LogWritten != e.VectorWritten }
