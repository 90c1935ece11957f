package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"imagegen/internal/apperr"
	"imagegen/internal/guard"
	"imagegen/internal/logger"
	"imagegen/internal/metrics"
	"imagegen/internal/model"
	"imagegen/internal/webhook"
)

// GenerationState is a step of one generation run.
type GenerationState string

const (
	StateIdle              GenerationState = "idle"
	StateGenerating        GenerationState = "generating"
	StateWaitingForWebhook GenerationState = "waiting_for_webhook"
	StateSecuring          GenerationState = "securing"
	StateSigning           GenerationState = "signing"
	StateRecording         GenerationState = "recording"
	StateDone              GenerationState = "done"
	StateFailed            GenerationState = "failed"
)

// Terminal reports whether no further transition follows s.
func (s GenerationState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateChange is reported to the observer on every transition.
type StateChange struct {
	State GenerationState `json:"state"`
	At    time.Time       `json:"at"`
	Err   string          `json:"error,omitempty"`
}

// Observer receives transitions in order. It must not block for long.
type Observer func(StateChange)

// GenerationResult describes a finished run.
type GenerationResult struct {
	Prompt       string          `json:"prompt"`
	Path         string          `json:"path,omitempty"`
	SignedURL    string          `json:"signed_url,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	HistorySaved bool            `json:"history_saved"`
	HistoryID    string          `json:"history_id,omitempty"`
	State        GenerationState `json:"state"`
	Transitions  []StateChange   `json:"transitions"`
}

// GenerationService runs prompt → webhook → secure copy → signed URL → history.
type GenerationService interface {
	// Generate runs one generation for caller. Input and in-flight rejections return a nil result
	// and make no transition; once the run started the result is always returned, with a non-nil
	// error when it ended in StateFailed.
	Generate(ctx context.Context, caller model.Identity, prompt string, observe Observer) (*GenerationResult, error)
}

// GenerationDeps are the collaborators of the orchestrator.
type GenerationDeps struct {
	Generator webhook.Generator
	Copier    SecureCopyService
	Signer    URLSigner
	History   HistoryService
	Guard     guard.InFlightGuard
	Metrics   *metrics.Pipeline
	Log       *slog.Logger
}

// GenerationOptions tune the orchestrator.
type GenerationOptions struct {
	SignedURLTTL time.Duration
	WaitNotice   time.Duration
}

type generationService struct {
	deps GenerationDeps
	opts GenerationOptions
	now  func() time.Time
}

// NewGenerationService constructs a GenerationService.
func NewGenerationService(deps GenerationDeps, opts GenerationOptions) GenerationService {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	if opts.WaitNotice <= 0 {
		opts.WaitNotice = 3 * time.Second
	}
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	return &generationService{deps: deps, opts: opts, now: time.Now}
}

var tracer = otel.Tracer("imagegen/internal/service")

func (s *generationService) Generate(ctx context.Context, caller model.Identity, prompt string, observe Observer) (*GenerationResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.ErrEmptyPrompt
	}
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}

	// A client disconnect must not abort a run that already reached the webhook.
	ctx = context.WithoutCancel(ctx)

	release, err := s.deps.Guard.Acquire(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.deps.Log.Warn("in-flight slot not released", slog.String("user_id", caller.UserID), logger.Err(err))
		}
	}()

	ctx, span := tracer.Start(ctx, "generation", trace.WithAttributes(attribute.String("user.id", caller.UserID)))
	defer span.End()

	r := &run{
		svc:     s,
		observe: observe,
		result:  &GenerationResult{Prompt: prompt, State: StateIdle},
	}

	res, err := r.execute(ctx, caller)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// run holds the state of one generation.
type run struct {
	svc     *generationService
	observe Observer

	mu      sync.Mutex
	result  *GenerationResult
	replied bool
}

func (r *run) execute(ctx context.Context, caller model.Identity) (*GenerationResult, error) {
	s := r.svc
	log := s.deps.Log.With(slog.String("user_id", caller.UserID))

	r.transition(StateGenerating, nil)
	ref, err := r.generate(ctx)
	if err != nil {
		return r.fail(log, err)
	}

	r.transition(StateSecuring, nil)
	var stored *model.StoredImage
	err = r.stage(ctx, "securing", func(ctx context.Context) error {
		var err error
		stored, err = s.deps.Copier.Copy(ctx, caller, ref.URL)
		return err
	})
	if err != nil {
		return r.fail(log, err)
	}
	r.result.Path = stored.Path

	r.transition(StateSigning, nil)
	var signed *model.SignedURL
	err = r.stage(ctx, "signing", func(ctx context.Context) error {
		var err error
		signed, err = s.deps.Signer.Sign(ctx, stored.Path, s.opts.SignedURLTTL)
		return err
	})
	if err != nil {
		return r.fail(log, err)
	}
	r.result.SignedURL = signed.URL
	r.result.ExpiresAt = &signed.ExpiresAt

	r.transition(StateRecording, nil)
	var row *model.GeneratedImage
	err = r.stage(ctx, "recording", func(ctx context.Context) error {
		var err error
		row, err = s.deps.History.Record(ctx, caller.UserID, r.result.Prompt, stored.Path)
		return err
	})
	if err != nil {
		// The image is stored and viewable; only the history entry is missing.
		log.Error("history write failed", slog.String("path", stored.Path), logger.Err(err))
		s.deps.Metrics.HistoryWriteFailed()
	} else {
		r.result.HistorySaved = true
		r.result.HistoryID = row.ID
	}

	r.transition(StateDone, nil)
	s.deps.Metrics.Outcome(string(StateDone))
	log.Info("generation done", slog.String("path", stored.Path), slog.Bool("history_saved", r.result.HistorySaved))
	return r.snapshot(), nil
}

// generate calls the webhook and reports waiting_for_webhook once the notice delay passes.
func (r *run) generate(ctx context.Context) (model.RawImageReference, error) {
	timer := time.AfterFunc(r.svc.opts.WaitNotice, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.replied && r.result.State == StateGenerating {
			r.transitionLocked(StateWaitingForWebhook, nil)
		}
	})
	defer timer.Stop()

	var ref model.RawImageReference
	err := r.stage(ctx, "generating", func(ctx context.Context) error {
		var err error
		ref, err = r.svc.deps.Generator.Generate(ctx, r.result.Prompt)
		return err
	})

	r.mu.Lock()
	r.replied = true
	r.mu.Unlock()
	return ref, err
}

func (r *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.svc.deps.Metrics.ObserveStage(name, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *run) fail(log *slog.Logger, err error) (*GenerationResult, error) {
	r.mu.Lock()
	from := r.result.State
	r.mu.Unlock()

	r.transition(StateFailed, err)
	r.svc.deps.Metrics.Outcome(string(StateFailed))
	log.Warn("generation failed",
		slog.String("stage", string(from)),
		slog.String("kind", apperr.KindOf(err).String()),
		logger.Err(err),
	)
	return r.snapshot(), err
}

func (r *run) transition(to GenerationState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(to, err)
}

func (r *run) transitionLocked(to GenerationState, err error) {
	if r.result.State.Terminal() {
		return
	}
	change := StateChange{State: to, At: r.svc.now().UTC()}
	if err != nil {
		change.Err = err.Error()
	}
	r.result.State = to
	r.result.Transitions = append(r.result.Transitions, change)
	if r.observe != nil {
		r.observe(change)
	}
}

func (r *run) snapshot() *GenerationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *r.result
	out.Transitions = append([]StateChange(nil), r.result.Transitions...)
	return &out
}
