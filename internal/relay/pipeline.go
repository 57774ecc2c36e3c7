package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

// DefaultLongPollWait is the longest wait SQS allows for a single receive.
const DefaultLongPollWait = 20 * time.Second

// Audit line prefixes.
const (
	AuditReceived = "Read message from input queue: "
	AuditSent     = "Sent message to output queue: "
)

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Input     InputQueue
	Output    OutputQueue
	Directory Directory
	Audit     AuditLog
	Logger    *zap.Logger
}

// Pipeline runs one receive -> enrich -> forward -> delete unit of work.
// It holds no state between runs.
type Pipeline struct {
	input        InputQueue
	output       OutputQueue
	directory    Directory
	audit        AuditLog
	logger       *zap.Logger
	longPollWait time.Duration

	nowFunc  func() time.Time
	newToken func() string
}

// NewPipeline wires a pipeline. A negative longPollWait means
// DefaultLongPollWait; zero is a short poll.
func NewPipeline(deps Deps, longPollWait time.Duration) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if longPollWait < 0 {
		longPollWait = DefaultLongPollWait
	}
	return &Pipeline{
		input:        deps.Input,
		output:       deps.Output,
		directory:    deps.Directory,
		audit:        deps.Audit,
		logger:       logger.Named("pipeline"),
		longPollWait: longPollWait,
		nowFunc:      time.Now,
		newToken:     uuid.NewString,
	}
}

// RunOnce processes at most one message from the input queue. The source
// message is deleted only after the enriched copy was sent.
func (p *Pipeline) RunOnce(ctx context.Context) Result {
	msg, err := p.input.Receive(ctx, p.longPollWait)
	if err != nil {
		p.logger.Error("receive failed", zap.Error(err))
		return Result{Outcome: OutcomeTransportError, Err: fmt.Errorf("receive: %w", err)}
	}
	if msg == nil {
		return Result{Outcome: OutcomeNoMessage}
	}

	res := p.Relay(ctx, msg)
	if res.Outcome != OutcomeDelivered {
		return res
	}

	if err := p.input.Delete(ctx, msg.ReceiptToken); err != nil {
		// The enriched record is already out; the source will be redelivered.
		p.logger.Error("delete failed after forwarding",
			zap.String("message_id", msg.ID),
			zap.String("patient_id", res.PatientID),
			zap.Error(err))
		res.Outcome = OutcomeDeleteFailed
		res.Err = fmt.Errorf("delete: %w", err)
	}
	return res
}

// Relay logs, parses, enriches and forwards msg without acknowledging it.
// OutcomeDelivered here means the send succeeded.
func (p *Pipeline) Relay(ctx context.Context, msg *Message) Result {
	res := Result{MessageID: msg.ID}
	logger := p.logger.With(zap.String("message_id", msg.ID))

	p.audit.Append(AuditReceived + msg.Body)

	req, err := patient.Parse([]byte(msg.Body))
	if err != nil {
		logger.Warn("unparseable message left on queue", zap.Error(err))
		res.Outcome = OutcomeParseFailed
		res.Err = err
		return res
	}
	res.PatientID = req.ID
	logger = logger.With(zap.String("patient_id", req.ID))

	enriched := p.enrich(ctx, logger, req)

	body, err := json.Marshal(enriched)
	if err != nil {
		res.Outcome = OutcomeSendFailed
		res.Err = fmt.Errorf("encode enriched record: %w", err)
		return res
	}

	out := OutboundMessage{
		Body:     string(body),
		GroupKey: req.ID,
		DedupKey: DedupKey(req.ID, p.nowFunc(), p.newToken()),
	}
	if err := p.output.Send(ctx, out); err != nil {
		logger.Error("send failed, message left on queue", zap.Error(err))
		res.Outcome = OutcomeSendFailed
		res.Err = fmt.Errorf("send: %w", err)
		return res
	}
	p.audit.Append(AuditSent + out.Body)

	res.Outcome = OutcomeDelivered
	return res
}

// enrich never fails: directory trouble degrades to "no policy found".
func (p *Pipeline) enrich(ctx context.Context, logger *zap.Logger, req *patient.Request) *patient.Request {
	info, found, err := p.directory.Lookup(ctx, req.ID)
	if err != nil {
		logger.Warn("insurance lookup failed, forwarding unenriched", zap.Error(err))
		return req
	}
	if !found {
		logger.Debug("no insurance record")
		return req
	}
	return req.Enrich(info)
}

// DedupKey is unique per send, even for repeated sends of the same patient.
func DedupKey(patientID string, now time.Time, token string) string {
	return fmt.Sprintf("%s-%d-%s", patientID, now.UnixNano(), token)
}
