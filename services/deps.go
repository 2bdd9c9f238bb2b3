package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// Deps are the collaborators every service shares.
type Deps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Clock  clockwork.Clock
	Audit  Auditor
	Notify Notifier
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Audit == nil {
		d.Audit = nopAuditor{}
	}
	if d.Notify == nil {
		d.Notify = nopNotifier{}
	}
	return d
}

// StandingsInvalidator drops any cached live ranking.
type StandingsInvalidator interface {
	Invalidate(ctx context.Context)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context) {}

// Stored times have second granularity and are always UTC.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nowFrom(c clockwork.Clock) time.Time {
	return normalizeTime(c.Now())
}

var tracer = otel.Tracer("github.com/drakejin/cday2025-minigame-sub000/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func actorAttr(a models.Actor) attribute.KeyValue {
	return attribute.String("actor.role", string(a.Role))
}
