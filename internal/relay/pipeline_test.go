package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

func TestRunOnce_Delivered(t *testing.T) {
	h := newHarness(`{"id":"p1","name":"A"}`)
	h.p.nowFunc = func() time.Time { return time.Unix(0, 42) }
	h.p.newToken = func() string { return "tok" }

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.NoError(t, res.Err)
	require.Equal(t, "m1", res.MessageID)
	require.Equal(t, "p1", res.PatientID)
	require.Equal(t, []string{"receive", "audit", "lookup", "send", "audit", "delete"}, h.rec.all())

	require.Len(t, h.output.sent, 1)
	sent := h.output.sent[0]
	require.Equal(t, `{"id":"p1","name":"A","policyNumber":"X1","provider":"Acme"}`, sent.Body)
	require.Equal(t, "p1", sent.GroupKey)
	require.Equal(t, "p1-42-tok", sent.DedupKey)

	require.Equal(t, []string{
		AuditReceived + `{"id":"p1","name":"A"}`,
		AuditSent + sent.Body,
	}, h.audit.lines)
	require.Equal(t, []string{"rt1"}, h.input.deleted)
	require.Empty(t, h.input.queue)
	require.Equal(t, []time.Duration{DefaultLongPollWait}, h.input.waits)
}

func TestRunOnce_NoDirectoryMatchForwardsUnchanged(t *testing.T) {
	h := newHarness(`{"id":"p9"}`)

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.Len(t, h.output.sent, 1)
	require.Equal(t, `{"id":"p9"}`, h.output.sent[0].Body)
	require.Equal(t, []string{"rt1"}, h.input.deleted)
}

func TestRunOnce_DirectoryFailureIsNotFatal(t *testing.T) {
	h := newHarness(`{"id":"p1","name":"A"}`)
	h.dir.err = errBoom

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.Equal(t, `{"id":"p1","name":"A"}`, h.output.sent[0].Body)
	require.Equal(t, []string{"rt1"}, h.input.deleted)
}

func TestRunOnce_ParseFailureKeepsMessage(t *testing.T) {
	h := newHarness(`{"name":"no id"}`)

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeParseFailed, res.Outcome)
	require.ErrorIs(t, res.Err, patient.ErrMissingID)
	require.Equal(t, []string{"receive", "audit"}, h.rec.all())
	require.Empty(t, h.output.sent)
	require.Empty(t, h.input.deleted)
	require.Len(t, h.input.queue, 1)
	require.Equal(t, []string{AuditReceived + `{"name":"no id"}`}, h.audit.lines)
}

func TestRunOnce_SendFailureThenRetry(t *testing.T) {
	h := newHarness(`{"id":"p1"}`)
	h.output.sendErr = errBoom

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeSendFailed, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, []string{"receive", "audit", "lookup", "send"}, h.rec.all())
	require.Empty(t, h.input.deleted)
	require.Len(t, h.audit.lines, 1, "nothing was sent, so no sent line")

	// the next cycle sees the same message and forwards it with a fresh dedup key
	h.output.sendErr = nil
	first := h.p.newToken
	tokens := []string{}
	h.p.newToken = func() string {
		tok := first()
		tokens = append(tokens, tok)
		return tok
	}

	res = h.p.RunOnce(context.Background())
	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.Len(t, h.output.sent, 1)
	require.Equal(t, "p1", h.output.sent[0].GroupKey)
	require.True(t, strings.HasPrefix(h.output.sent[0].DedupKey, "p1-"))
	require.True(t, strings.HasSuffix(h.output.sent[0].DedupKey, tokens[0]))
	require.Equal(t, []string{"rt1"}, h.input.deleted)
}

func TestRunOnce_RepeatedSendsGetDistinctDedupKeys(t *testing.T) {
	h := newHarness(`{"id":"p1"}`)
	h.input.deleteErr = errBoom // keep redelivering the same message

	for i := 0; i < 3; i++ {
		res := h.p.RunOnce(context.Background())
		require.Equal(t, OutcomeDeleteFailed, res.Outcome)
	}

	require.Len(t, h.output.sent, 3)
	seen := map[string]bool{}
	for _, m := range h.output.sent {
		require.Equal(t, "p1", m.GroupKey)
		require.False(t, seen[m.DedupKey], "dedup key reused: %s", m.DedupKey)
		seen[m.DedupKey] = true
	}
}

func TestRunOnce_DeleteFailure(t *testing.T) {
	h := newHarness(`{"id":"p1"}`)
	h.input.deleteErr = errBoom

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeDeleteFailed, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, "p1", res.PatientID)
	require.Len(t, h.output.sent, 1, "the forwarded record is not rolled back")
	require.Equal(t, []string{"receive", "audit", "lookup", "send", "audit", "delete"}, h.rec.all())
}

func TestRunOnce_ReceiveError(t *testing.T) {
	h := newHarness(`{"id":"p1"}`)
	h.input.receiveErr = errBoom

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeTransportError, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, []string{"receive"}, h.rec.all())
	require.Empty(t, h.audit.lines)
}

func TestRunOnce_NoMessage(t *testing.T) {
	h := newHarness()

	res := h.p.RunOnce(context.Background())

	require.Equal(t, OutcomeNoMessage, res.Outcome)
	require.NoError(t, res.Err)
	require.Equal(t, []string{"receive"}, h.rec.all())
}

func TestNewPipeline_LongPollWait(t *testing.T) {
	h := newHarness()
	p := NewPipeline(Deps{Input: h.input, Output: h.output, Directory: h.dir, Audit: h.audit}, 5*time.Second)

	p.RunOnce(context.Background())
	require.Equal(t, []time.Duration{5 * time.Second}, h.input.waits)
}

func TestRelay_DoesNotDelete(t *testing.T) {
	h := newHarness()

	res := h.p.Relay(context.Background(), &Message{ID: "m1", Body: `{"id":"p1"}`, ReceiptToken: "rt"})

	require.Equal(t, OutcomeDelivered, res.Outcome)
	require.Equal(t, []string{"audit", "lookup", "send", "audit"}, h.rec.all())
}

func TestOutcomeString(t *testing.T) {
	seen := map[string]bool{}
	for _, o := range Outcomes {
		s := o.String()
		require.NotEqual(t, "unknown", s)
		require.False(t, seen[s])
		seen[s] = true
	}
	require.Equal(t, "unknown", Outcome(99).String())
}
