package notify

import (
	"context"

	"go.uber.org/zap"

	"reviewdesk/internal/domain"
)

// Outcome describes a workflow transition worth telling someone about.
type Outcome struct {
	DeliverableID string
	ProjectID     string
	Title         string
	Action        domain.Action
	FromStatus    domain.Status
	ToStatus      domain.Status
	Version       int
	Note          string
}

// Relay delivers transition outcomes to interested actors. Delivery is
// best effort and must never block or fail the workflow operation that
// produced the outcome.
type Relay interface {
	Notify(ctx context.Context, actorID string, outcome Outcome)
}

// LogRelay writes notifications to the structured log. It is the default
// relay when no external channel is configured.
type LogRelay struct {
	Log *zap.Logger
}

func NewLogRelay(log *zap.Logger) LogRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return LogRelay{Log: log}
}

func (r LogRelay) Notify(_ context.Context, actorID string, outcome Outcome) {
	r.Log.Info("notify",
		zap.String("actor_id", actorID),
		zap.String("deliverable_id", outcome.DeliverableID),
		zap.String("project_id", outcome.ProjectID),
		zap.String("action", string(outcome.Action)),
		zap.String("from_status", string(outcome.FromStatus)),
		zap.String("to_status", string(outcome.ToStatus)),
		zap.Int("version", outcome.Version),
	)
}

// Fanout sends each outcome to every relay in order.
type Fanout []Relay

func (f Fanout) Notify(ctx context.Context, actorID string, outcome Outcome) {
	for _, r := range f {
		r.Notify(ctx, actorID, outcome)
	}
}
