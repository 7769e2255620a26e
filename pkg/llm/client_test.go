package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond})
	calls := 0
	err := rp.Do(context.Background(), func() (bool, error) {
		calls++
		if calls < 2 {
			return true, errors.New("transient")
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicyNonRetryableStopsImmediately(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond})
	calls := 0
	permanent := errors.New("bad request")
	err := rp.Do(context.Background(), func() (bool, error) {
		calls++
		return false, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond})
	calls := 0
	err := rp.Do(context.Background(), func() (bool, error) {
		calls++
		return true, fmt.Errorf("still failing")
	})
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyHonorsContextCancellation(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := rp.Do(ctx, func() (bool, error) {
		return true, errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func completionResponse(content string) string {
	return fmt.Sprintf(`{"choices": [{"message": {"content": %q}}]}`, content)
}

func TestGenerateReturnsContentJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, completionResponse(`{"status": "UNKNOWN"}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(ClientConfig{BaseURL: srv.URL, APIKey: "test-key"})
	out, err := g.Generate(context.Background(), Prompt{System: "s", User: "u", SchemaHint: `{"status": ""}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "UNKNOWN"}`, string(out))
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionResponse(`{"ok": true}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Retry:   RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond},
	})
	out, err := g.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.JSONEq(t, `{"ok": true}`, string(out))
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "bad-key",
		Retry:   RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond},
	})
	_, err := g.Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateRejectsNonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionResponse("I am sorry, I cannot answer that."))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(ClientConfig{BaseURL: srv.URL, APIKey: "test-key"})
	_, err := g.Generate(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}
