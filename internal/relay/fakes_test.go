package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

var errBoom = errors.New("boom")

// recorder collects every side effect in call order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeInput struct {
	rec        *recorder
	queue      []*Message
	receiveErr error
	deleteErr  error
	deleted    []string
	waits      []time.Duration
}

func (f *fakeInput) Receive(_ context.Context, wait time.Duration) (*Message, error) {
	f.rec.add("receive")
	f.waits = append(f.waits, wait)
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	// the message stays visible until deleted
	m := *f.queue[0]
	return &m, nil
}

func (f *fakeInput) Delete(_ context.Context, token string) error {
	f.rec.add("delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, token)
	for i, m := range f.queue {
		if m.ReceiptToken == token {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
	return nil
}

type fakeOutput struct {
	rec     *recorder
	sendErr error
	sent    []OutboundMessage
}

func (f *fakeOutput) Send(_ context.Context, msg OutboundMessage) error {
	f.rec.add("send")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeDirectory struct {
	rec  *recorder
	data map[string]patient.PolicyInfo
	err  error
}

func (f *fakeDirectory) Lookup(_ context.Context, id string) (patient.PolicyInfo, bool, error) {
	f.rec.add("lookup")
	if f.err != nil {
		return patient.PolicyInfo{}, false, f.err
	}
	info, ok := f.data[id]
	return info, ok, nil
}

type fakeAudit struct {
	rec   *recorder
	lines []string
}

func (f *fakeAudit) Append(msg string) {
	f.rec.add("audit")
	f.lines = append(f.lines, msg)
}

type harness struct {
	rec    *recorder
	input  *fakeInput
	output *fakeOutput
	dir    *fakeDirectory
	audit  *fakeAudit
	p      *Pipeline
}

func newHarness(bodies ...string) *harness {
	rec := &recorder{}
	h := &harness{
		rec:    rec,
		input:  &fakeInput{rec: rec},
		output: &fakeOutput{rec: rec},
		dir: &fakeDirectory{rec: rec, data: map[string]patient.PolicyInfo{
			"p1": {PolicyNumber: "X1", Provider: "Acme"},
		}},
		audit: &fakeAudit{rec: rec},
	}
	for i, b := range bodies {
		h.input.queue = append(h.input.queue, &Message{
			ID:           "m" + string(rune('1'+i)),
			Body:         b,
			ReceiptToken: "rt" + string(rune('1'+i)),
		})
	}
	h.p = NewPipeline(Deps{
		Input:     h.input,
		Output:    h.output,
		Directory: h.dir,
		Audit:     h.audit,
	}, -1)
	return h
}
