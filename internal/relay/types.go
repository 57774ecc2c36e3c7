// Package relay moves patient records from the input queue to the output
// queue, merging insurance fields on the way.
package relay

import (
	"context"
	"time"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

// Message is one record taken off the input queue. It lives for a single
// cycle; ReceiptToken is only good for deleting this delivery.
type Message struct {
	ID           string
	Body         string
	ReceiptToken string
}

// OutboundMessage is what the pipeline hands to the output queue.
type OutboundMessage struct {
	Body     string
	GroupKey string
	DedupKey string
}

// Receiver returns at most one message, waiting up to wait. (nil, nil) means
// the queue stayed empty.
type Receiver interface {
	Receive(ctx context.Context, wait time.Duration) (*Message, error)
}

// Deleter acknowledges a message by its receipt token.
type Deleter interface {
	Delete(ctx context.Context, receiptToken string) error
}

// InputQueue is the queue records are consumed from.
type InputQueue interface {
	Receiver
	Deleter
}

// OutputQueue is the queue enriched records are forwarded to.
type OutputQueue interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Directory resolves insurance fields for a patient id.
type Directory interface {
	Lookup(ctx context.Context, patientID string) (patient.PolicyInfo, bool, error)
}

// AuditLog appends a timestamped line. It must not fail the caller.
type AuditLog interface {
	Append(msg string)
}

// Outcome classifies how a cycle ended.
type Outcome int

const (
	OutcomeNoMessage Outcome = iota
	OutcomeDelivered
	OutcomeParseFailed
	OutcomeSendFailed
	OutcomeDeleteFailed
	OutcomeTransportError
)

// Outcomes lists every outcome, in declaration order.
var Outcomes = []Outcome{
	OutcomeNoMessage,
	OutcomeDelivered,
	OutcomeParseFailed,
	OutcomeSendFailed,
	OutcomeDeleteFailed,
	OutcomeTransportError,
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNoMessage:
		return "no_message"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeDeleteFailed:
		return "delete_failed"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the report of one cycle. Err is set for every failed outcome.
type Result struct {
	Outcome   Outcome
	MessageID string
	PatientID string
	Err       error
}
