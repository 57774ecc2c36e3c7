package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/insurance-relay/internal/metrics"
	"github.com/imrishuroy/insurance-relay/internal/relay"
)

type fixedBusy bool

func (b fixedBusy) Busy() bool { return bool(b) }

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth(t *testing.T) {
	r := NewRouter(HandlerConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	stats := metrics.NewStats()
	stats.ObserveCycle(relay.Result{Outcome: relay.OutcomeDelivered}, time.Millisecond)
	stats.ObserveSkip()

	r := NewRouter(HandlerConfig{
		Stats:       stats,
		Scheduler:   fixedBusy(true),
		InputQueue:  "in",
		OutputQueue: "out.fifo",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["busy"])
	require.Equal(t, "in", body["input_queue"])
	require.Equal(t, "out.fifo", body["output_queue"])
	require.EqualValues(t, 1, body["cycles"])
	require.EqualValues(t, 1, body["skipped_ticks"])
	require.Equal(t, "delivered", body["last_outcome"])
	outcomes := body["outcomes"].(map[string]interface{})
	require.EqualValues(t, 1, outcomes["delivered"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", NewRouter(HandlerConfig{}), nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
