// Package events carries typed notifications between the tracker, the
// prediction cache and anything observing them. It replaces the ambient
// event dispatch the dashboard UI used to rely on with an explicit
// subscription surface.
package events

import (
	"context"
	"time"

	"github.com/finsight/riskdash-back/internal/domain"
)

type Kind string

const (
	KindJobUpdated        Kind = "job_updated"
	KindJobCompleted      Kind = "job_completed"
	KindJobFailed         Kind = "job_failed"
	KindPredictionAdded   Kind = "prediction_added"
	KindPredictionRemoved Kind = "prediction_removed"
	KindCacheRefreshed    Kind = "cache_refreshed"
)

// Event is the single payload shape published on the bus. Fields are set
// per kind; unset fields are omitted on the wire.
type Event struct {
	Kind         Kind              `json:"kind"`
	UserID       string            `json:"user_id"`
	JobID        string            `json:"job_id,omitempty"`
	JobStatus    domain.JobStatus  `json:"job_status,omitempty"`
	Progress     int               `json:"progress,omitempty"`
	PredictionID string            `json:"prediction_id,omitempty"`
	PeriodType   domain.PeriodType `json:"period_type,omitempty"`
	Message      string            `json:"message,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Publisher sends events to every current subscriber. Publishing is
// fire-and-forget: a slow subscriber never blocks the publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus is a Publisher that also hands out subscriptions. Cancel the
// returned function to release the subscription.
type Bus interface {
	Publisher
	Subscribe() (<-chan Event, func())
}
