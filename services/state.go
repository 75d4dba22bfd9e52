package services

import (
	"fmt"
	"strings"
	"time"

	"vibe-drinks/models"
)

// allowedTransitions is the only source of truth for the order lifecycle.
// The graph is acyclic with no self-loops, so each status is entered at most
// once per order.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:  {models.StatusReady, models.StatusCancelled},
	models.StatusReady:      {models.StatusDispatched, models.StatusCancelled},
	models.StatusDispatched: {models.StatusDelivered, models.StatusCancelled},
	models.StatusDelivered:  {},
	models.StatusCancelled:  {},
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func AllowedTransitions(s models.OrderStatus) []models.OrderStatus {
	next := allowedTransitions[s]
	out := make([]models.OrderStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError carries enough for the caller to tell the user what
// the order can do next.
type InvalidTransitionError struct {
	Current   models.OrderStatus
	Requested models.OrderStatus
	Allowed   []models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid status transition from %q to %q (allowed: [%s])",
		e.Current, e.Requested, strings.Join(allowed, ", "))
}

func newInvalidTransition(current, requested models.OrderStatus) *InvalidTransitionError {
	return &InvalidTransitionError{
		Current:   current,
		Requested: requested,
		Allowed:   AllowedTransitions(current),
	}
}

// ApplyTransition moves o to status to and stamps the matching timestamp.
// On rejection o is left exactly as it was.
func ApplyTransition(o *models.Order, to models.OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return newInvalidTransition(o.Status, to)
	}
	o.Status = to
	if stamp := o.StampFor(to); stamp != nil && *stamp == nil {
		t := at
		*stamp = &t
	}
	return nil
}
