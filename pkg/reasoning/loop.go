package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/completion"
	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tools"
)

// DefaultMaxIterations bounds a session.
const DefaultMaxIterations = 10

// Config holds configuration for the loop.
type Config struct {
	// Provider runs the think/decide steps.
	Provider completion.Provider

	// Executor runs tool invocations. Nil turns every invoke_tool
	// decision into a failure observation.
	Executor *tools.Executor

	// Builder assembles per-iteration context.
	Builder *ContextBuilder

	// Learn receives the episodic and procedural items the loop writes.
	// Normally the working tier. Nil disables learning.
	Learn memory.Tier

	// MaxIterations overrides DefaultMaxIterations when positive.
	MaxIterations int

	// Publisher receives reasoning events. Nil disables emission.
	Publisher events.Publisher

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Loop drives reasoning sessions.
type Loop struct {
	provider      completion.Provider
	executor      *tools.Executor
	builder       *ContextBuilder
	learnTier     memory.Tier
	maxIterations int
	publisher     events.Publisher
	clock         func() time.Time
	logger        *zap.Logger
}

// New creates a reasoning loop.
func New(c Config) (*Loop, error) {
	if c.Provider == nil {
		return nil, fmt.Errorf("a completion provider is required")
	}

	if c.Builder == nil {
		return nil, fmt.Errorf("a context builder is required")
	}

	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Loop{
		provider:      c.Provider,
		executor:      c.Executor,
		builder:       c.Builder,
		learnTier:     c.Learn,
		maxIterations: c.MaxIterations,
		publisher:     c.Publisher,
		clock:         c.Clock,
		logger:        c.Logger,
	}, nil
}

// Run executes one session. The returned session always reflects whatever
// progress was made, including on error.
func (l *Loop) Run(ctx context.Context, query string) (*Session, error) {
	session := NewSession(query, l.clock().UTC())

	l.logger.Info("reasoning session started",
		zap.String("session_id", session.ID),
		zap.String("query", query),
	)

	for len(session.Iterations) < l.maxIterations {
		if err := ctx.Err(); err != nil {
			l.finish(ctx, session, StateError)
			return session, err
		}

		assembled := l.builder.Build(ctx, query)

		resolution, err := l.complete(ctx, completion.Request{
			Prompt:      query,
			Context:     assembled.Render(),
			Constraints: assembled.Constraints,
		})
		if err != nil {
			l.finish(ctx, session, StateError)
			return session, fmt.Errorf("completing iteration %d: %w", len(session.Iterations)+1, err)
		}

		iteration := Iteration{
			Thought:   resolution.Thought,
			Timestamp: l.clock().UTC(),
		}

		switch resolution.Decision {
		case completion.DecisionRespond:
			iteration.Action = ActionRespond
			iteration.Observation = resolution.Text
			session.Append(iteration)
			session.Answer = resolution.Text

			l.emitIteration(ctx, session)
			l.learn(ctx, session, session.Last())
			l.distill(ctx, session)
			l.finish(ctx, session, StateCompleted)

			return session, nil

		case completion.DecisionInvokeTool:
			iteration.Action = ActionInvokeTool
			iteration.Tool = resolution.ToolName
			iteration.Args = resolution.Args
			iteration.Observation = l.invoke(ctx, resolution.ToolName, resolution.Args)

		case completion.DecisionDelegate:
			iteration.Action = ActionDelegate
			iteration.Observation = l.delegate(ctx, assembled, resolution.Text)

		default:
			iteration.Action = ActionDelegate
			iteration.Observation = fmt.Sprintf("unusable decision %q, rethinking", resolution.Decision)
		}

		session.Append(iteration)
		l.emitIteration(ctx, session)
		l.learn(ctx, session, session.Last())
	}

	session.Answer = l.partialAnswer(session)
	l.distill(ctx, session)
	l.finish(ctx, session, StateIterationLimit)

	return session, nil
}

// complete calls the provider under the shared bounded-backoff policy, so
// a transient provider outage does not abort the session on the first try.
func (l *Loop) complete(ctx context.Context, req completion.Request) (*completion.Resolution, error) {
	var resolution *completion.Resolution

	err := memory.WithRetry(ctx, "completion provider", func() error {
		var cerr error
		resolution, cerr = l.provider.Complete(ctx, req)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	return resolution, nil
}

// delegate hands the sub-prompt back to the provider and returns its
// result as the iteration's observation. Like tool calls, a failed
// delegation becomes an observation instead of aborting the session.
func (l *Loop) delegate(ctx context.Context, assembled *Context, subPrompt string) string {
	resolution, err := l.complete(ctx, completion.Request{
		Prompt:      subPrompt,
		Context:     assembled.Render(),
		Constraints: assembled.Constraints,
	})
	if err != nil {
		return fmt.Sprintf("delegation of %q failed: %v", subPrompt, err)
	}

	if resolution.Text != "" {
		return resolution.Text
	}

	return resolution.Thought
}

// invoke runs one tool call; failures become observations so the session
// keeps going.
func (l *Loop) invoke(ctx context.Context, name string, args map[string]any) string {
	if l.executor == nil {
		return fmt.Sprintf("tool %s unavailable: no executor configured", name)
	}

	observation, err := l.executor.Execute(ctx, name, args)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}

	return observation
}

// learn writes one episodic item describing the iteration into the entry
// tier. Failed tool calls are remembered as slightly more important than
// clean steps.
func (l *Loop) learn(ctx context.Context, session *Session, it Iteration) {
	if l.learnTier == nil {
		return
	}

	importance := 0.3
	switch {
	case it.Action == ActionRespond:
		importance = 0.6
	case it.Action == ActionInvokeTool && strings.Contains(it.Observation, "failed"):
		importance = 0.5
	case it.Action == ActionInvokeTool:
		importance = 0.4
	}

	content := fmt.Sprintf("while answering %q: %s -> %s",
		session.Query, it.Action, it.Observation)

	item, err := memory.NewItem(content, memory.TypeEpisodic, importance)
	if err != nil {
		l.logger.Warn("failed to build learned item", zap.Error(err))
		return
	}
	item.Source = "reasoning:" + session.ID

	if _, err := l.learnTier.Store(ctx, item); err != nil {
		l.logger.Warn("failed to store learned item", zap.Error(err))
	}
}

// distill writes one procedural item summarizing the finished session.
func (l *Loop) distill(ctx context.Context, session *Session) {
	if l.learnTier == nil || len(session.Iterations) == 0 {
		return
	}

	var steps []string
	for _, it := range session.Iterations {
		if it.Action == ActionInvokeTool {
			steps = append(steps, it.Tool)
		}
	}

	content := fmt.Sprintf("queries like %q take %d iteration(s)",
		session.Query, len(session.Iterations))
	if len(steps) > 0 {
		content += ", using tools: " + strings.Join(steps, ", ")
	}

	item, err := memory.NewItem(content, memory.TypeProcedural, 0.6)
	if err != nil {
		l.logger.Warn("failed to build distilled item", zap.Error(err))
		return
	}
	item.Source = "reasoning:" + session.ID

	if _, err := l.learnTier.Store(ctx, item); err != nil {
		l.logger.Warn("failed to store distilled item", zap.Error(err))
	}
}

// partialAnswer synthesizes a best-effort answer when the iteration cap is
// reached without a respond decision.
func (l *Loop) partialAnswer(session *Session) string {
	last := session.Last()

	var parts []string
	if last.Thought != "" {
		parts = append(parts, last.Thought)
	}
	if last.Observation != "" {
		parts = append(parts, last.Observation)
	}

	if len(parts) == 0 {
		return "no conclusion reached within the iteration limit"
	}

	return "partial answer (iteration limit reached): " + strings.Join(parts, "; ")
}

func (l *Loop) finish(ctx context.Context, session *Session, state State) {
	session.State = state
	session.CompletedAt = l.clock().UTC()

	l.logger.Info("reasoning session finished",
		zap.String("session_id", session.ID),
		zap.String("state", string(state)),
		zap.Int("iterations", len(session.Iterations)),
		zap.Duration("duration", session.Duration()),
	)

	if l.publisher == nil {
		return
	}

	event := events.New(events.EventTypeReasoningCompleted, "reasoning")
	event.Reasoning = &events.ReasoningMeta{
		SessionID:  session.ID,
		Iteration:  len(session.Iterations),
		State:      string(state),
		DurationMs: session.Duration().Milliseconds(),
	}

	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish session event", zap.Error(err))
	}
}

func (l *Loop) emitIteration(ctx context.Context, session *Session) {
	if l.publisher == nil {
		return
	}

	last := session.Last()

	event := events.New(events.EventTypeReasoningIteration, "reasoning")
	event.Reasoning = &events.ReasoningMeta{
		SessionID: session.ID,
		Iteration: last.Index,
		State:     string(StateRunning),
		Tool:      last.Tool,
	}

	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish iteration event", zap.Error(err))
	}
}
