package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/insurance-relay/internal/relay"
)

// SQS limits for message group and deduplication ids.
const maxIDLength = 128

// Queue wraps an SQS client and a queue URL. It serves as either end of the relay.
type Queue struct {
	SQS      SQSAPI
	QueueURL string
	// FIFO enables MessageGroupId / MessageDeduplicationId on send.
	FIFO bool
	// VisibilityTimeout overrides the queue default when > 0.
	VisibilityTimeout time.Duration
}

// NewQueue returns a Queue bound to a queue URL. FIFO is inferred from the
// ".fifo" suffix SQS requires on FIFO queue names.
func NewQueue(sqsClient SQSAPI, queueURL string) *Queue {
	return &Queue{
		SQS:      sqsClient,
		QueueURL: queueURL,
		FIFO:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Receive long-polls for a single message.
func (q *Queue) Receive(ctx context.Context, wait time.Duration) (*relay.Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            &q.QueueURL,
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(wait / time.Second),
	}
	if q.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(q.VisibilityTimeout / time.Second)
	}

	out, err := q.SQS.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, wrapAPIError("receive message", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	m := out.Messages[0]
	if m.ReceiptHandle == nil {
		return nil, errors.New("receive message: missing receipt handle")
	}
	return &relay.Message{
		ID:           deref(m.MessageId),
		Body:         deref(m.Body),
		ReceiptToken: *m.ReceiptHandle,
	}, nil
}

// Send publishes msg. On FIFO queues the group and dedup keys become the
// SQS group and deduplication ids; elsewhere they travel as attributes.
func (q *Queue) Send(ctx context.Context, msg relay.OutboundMessage) error {
	body := msg.Body
	input := &sqs.SendMessageInput{
		QueueUrl:    &q.QueueURL,
		MessageBody: &body,
	}
	if q.FIFO {
		input.MessageGroupId = awsString(SanitizeID(msg.GroupKey, false))
		input.MessageDeduplicationId = awsString(SanitizeID(msg.DedupKey, true))
	} else {
		// Standard queues have no dedup of their own; consumers match on these.
		attrs := map[string]sqstypes.MessageAttributeValue{}
		if msg.GroupKey != "" {
			attrs["patient_id"] = stringAttribute(msg.GroupKey)
		}
		if msg.DedupKey != "" {
			attrs["dedup_key"] = stringAttribute(msg.DedupKey)
		}
		if len(attrs) > 0 {
			input.MessageAttributes = attrs
		}
	}

	out, err := q.SQS.SendMessage(ctx, input)
	if err != nil {
		return wrapAPIError("send message", err)
	}
	if out == nil || out.MessageId == nil {
		return errors.New("send message: no message id in response")
	}
	return nil
}

// Delete removes the delivery identified by receiptToken.
func (q *Queue) Delete(ctx context.Context, receiptToken string) error {
	_, err := q.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.QueueURL,
		ReceiptHandle: &receiptToken,
	})
	if err != nil {
		return wrapAPIError("delete message", err)
	}
	return nil
}

// SanitizeID maps s onto the characters SQS accepts in group and dedup ids
// and caps it at 128 characters. keepTail keeps the end of an overlong value,
// which is where the unique part of a dedup key lives.
func SanitizeID(s string, keepTail bool) string {
	b := []byte(s)
	for i, c := range b {
		if c < '!' || c > '~' {
			b[i] = '_'
		}
	}
	if len(b) > maxIDLength {
		if keepTail {
			b = b[len(b)-maxIDLength:]
		} else {
			b = b[:maxIDLength]
		}
	}
	return string(b)
}

func wrapAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// awsString helper
func awsString(s string) *string { return &s }

func stringAttribute(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: awsString("String"), StringValue: awsString(v)}
}
