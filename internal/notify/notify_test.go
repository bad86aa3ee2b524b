package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/core"
)

type recorder struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (r *recorder) Send(_ context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return r.err
}

func TestOnFailureOnlyNotifiesFailedRuns(t *testing.T) {
	rec := &recorder{}
	cb := OnFailure(rec, func(id string) string { return "daily sales" })

	require.NoError(t, cb(context.Background(), "t1", core.ExecutionResult{Success: true}))
	require.NoError(t, cb(context.Background(), "t1", core.ExecutionResult{Message: "no matching files"}))

	require.Len(t, rec.titles, 1)
	assert.Equal(t, "Sync task failed: daily sales", rec.titles[0])
	assert.Equal(t, "no matching files", rec.bodies[0])
}

func TestOnFailureWrapsSendError(t *testing.T) {
	cb := OnFailure(&recorder{err: errors.New("offline")}, nil)
	err := cb(context.Background(), "t1", core.ExecutionResult{})
	assert.ErrorContains(t, err, "offline")
	assert.ErrorContains(t, err, "t1")
}

func TestChainRunsAllCallbacks(t *testing.T) {
	var calls []string
	first := errors.New("first")
	cb := Chain(
		func(context.Context, string, core.ExecutionResult) error { calls = append(calls, "a"); return first },
		nil,
		func(context.Context, string, core.ExecutionResult) error { calls = append(calls, "b"); return errors.New("second") },
	)
	err := cb(context.Background(), "t1", core.ExecutionResult{})
	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	a, b := &recorder{err: errors.New("a down")}, &recorder{}
	err := NewMultiNotifier(a, b, &NoOpNotifier{}).Send(context.Background(), "t", "b")
	assert.ErrorContains(t, err, "a down")
	assert.Len(t, b.titles, 1, "later notifiers still run")
}

func TestBarkNotifier(t *testing.T) {
	var got struct{ title, body, group string }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devicekey", r.URL.Path)
		q := r.URL.Query()
		got.title, got.body, got.group = q.Get("title"), q.Get("body"), q.Get("group")
	}))
	defer srv.Close()

	n, err := NewBarkNotifier(srv.URL + "/devicekey/")
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), "hello", "a & b"))
	assert.Equal(t, "hello", got.title)
	assert.Equal(t, "a & b", got.body)
	assert.Equal(t, "sheetsync", got.group)

	_, err = NewBarkNotifier("  ")
	assert.Error(t, err)
}

func TestBarkNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.ErrorContains(t, n.Send(context.Background(), "t", "b"), "400")
}
