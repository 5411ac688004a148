package order

import "fmt"

// Status is the fulfillment state of an order.
type Status string

const (
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusReadyToShip    Status = "ready_to_ship"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
	StatusFailed         Status = "failed"
)

// transitions is the directed graph of legal status changes. Failed is
// reachable from every non-terminal state; cancelled, refunded and failed
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusConfirmed:      {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing:     {StatusReadyToShip, StatusCancelled, StatusFailed},
	StatusReadyToShip:    {StatusShipped, StatusFailed},
	StatusShipped:        {StatusOutForDelivery, StatusFailed},
	StatusOutForDelivery: {StatusDelivered, StatusFailed},
	StatusDelivered:      {StatusRefunded, StatusFailed},
	StatusCancelled:      nil,
	StatusRefunded:       nil,
	StatusFailed:         nil,
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next follows the graph.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TransitionError indicates a requested status change does not follow the
// fulfillment graph. It is a business rejection, not a system fault.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal order transition from %s to %s", e.From, e.To)
}
