package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/relay"
)

// relayer is the part of the pipeline that runs when Lambda owns the receive
// and the delete.
type relayer interface {
	Relay(ctx context.Context, msg *relay.Message) relay.Result
}

// LambdaHandler processes SQS event batches. Records that were not forwarded
// are reported back so only they are redelivered.
type LambdaHandler struct {
	relay  relayer
	logger *zap.Logger
}

func NewLambdaHandler(r relayer, logger *zap.Logger) *LambdaHandler {
	return &LambdaHandler{relay: r, logger: logger.Named("lambda")}
}

// Handle receives an SQS batch event and relays each message.
func (h *LambdaHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	h.logger.Debug("received batch", zap.Int("records", len(ev.Records)))

	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		res := h.relay.Relay(ctx, &relay.Message{
			ID:           rec.MessageId,
			Body:         rec.Body,
			ReceiptToken: rec.ReceiptHandle,
		})
		if res.Outcome == relay.OutcomeDelivered {
			h.logger.Info("message processed",
				zap.String("message_id", rec.MessageId),
				zap.String("patient_id", res.PatientID))
			continue
		}
		h.logger.Warn("message not forwarded",
			zap.String("message_id", rec.MessageId),
			zap.String("outcome", res.Outcome.String()),
			zap.Error(res.Err))
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: rec.MessageId,
		})
	}
	return resp, nil
}
