package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"

	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

// RetryClass tells whether a failed call may be attempted again.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe" // at most maxMaybeRetries
	RetryClassNonRetryable RetryClass = "non_retryable"
)

const maxMaybeRetries = 2

// RetryPolicy defines the backoff applied to completion calls.
type RetryPolicy struct {
	MaxRetries   int           // 0 disables retries
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap for every delay
	Multiplier   float64       // exponential backoff factor
	Jitter       bool          // add 0-20% random delay
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// RetryExhaustedError is returned once the policy gives up on a retryable
// error.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d retries: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// ClassifyError decides from a provider error whether retrying can help.
// Typed SDK errors are classified by HTTP status; anything else falls back to
// the error text.
func ClassifyError(err error) RetryClass {
	if err == nil || errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryClassMaybe
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return RetryClassRetryable
	}

	var anthropicErr *anthropic.APIError
	if errors.As(err, &anthropicErr) {
		switch {
		case anthropicErr.IsRateLimitErr(), anthropicErr.IsOverloadedErr(), anthropicErr.IsApiErr():
			return RetryClassRetryable
		default:
			return RetryClassNonRetryable
		}
	}
	if status, ok := statusCode(err); ok {
		return classifyStatus(status)
	}

	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		return classifyStatus(status)
	}

	switch {
	case containsAny(msg, "unauthorized", "forbidden", "invalid api key", "permission denied"):
		return RetryClassNonRetryable
	case containsAny(msg, "invalid request", "invalid_request"):
		return RetryClassNonRetryable
	case containsAny(msg, "rate limit", "too many requests", "resource exhausted", "overloaded"):
		return RetryClassRetryable
	case containsAny(msg, "internal server error", "bad gateway", "service unavailable", "unavailable"):
		return RetryClassRetryable
	case containsAny(msg, "timeout", "connection reset", "connection refused", "no such host", "temporary failure"),
		eofPattern.MatchString(msg):
		return RetryClassRetryable
	case containsAny(msg, "deadline exceeded"):
		return RetryClassMaybe
	}
	return RetryClassNonRetryable
}

// statusPattern finds a standalone 4xx or 5xx code, so "4000 tokens" does not
// count as a status.
var (
	statusPattern = regexp.MustCompile(`\b([45]\d\d)\b`)
	eofPattern    = regexp.MustCompile(`\beof\b`)
)

// statusCode extracts the HTTP status carried by a typed SDK error.
func statusCode(err error) (int, bool) {
	var (
		openaiAPI *openai.APIError
		openaiReq *openai.RequestError
		anthReq   *anthropic.RequestError
		genaiErr  genai.APIError
	)
	switch {
	case errors.As(err, &openaiAPI) && openaiAPI.HTTPStatusCode > 0:
		return openaiAPI.HTTPStatusCode, true
	case errors.As(err, &openaiReq) && openaiReq.HTTPStatusCode > 0:
		return openaiReq.HTTPStatusCode, true
	case errors.As(err, &anthReq) && anthReq.StatusCode > 0:
		return anthReq.StatusCode, true
	case errors.As(err, &genaiErr) && genaiErr.Code > 0:
		return genaiErr.Code, true
	}
	return 0, false
}

func classifyStatus(status int) RetryClass {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return RetryClassRetryable
	case status >= 500:
		return RetryClassRetryable
	}
	return RetryClassNonRetryable
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// retryingClient retries failed calls of the wrapped client.
type retryingClient struct {
	next     domain.CompletionClient
	policy   RetryPolicy
	classify func(error) RetryClass
	sleep    func(context.Context, time.Duration) error
}

// WithRetry wraps client so that retryable failures are attempted again
// following policy.
func WithRetry(client domain.CompletionClient, policy RetryPolicy) domain.CompletionClient {
	if policy.MaxRetries <= 0 {
		return client
	}
	return &retryingClient{
		next:     client,
		policy:   policy,
		classify: ClassifyError,
		sleep:    sleepContext,
	}
}

func (r *retryingClient) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	return retry(ctx, r, "complete", func(ctx context.Context) (domain.Completion, error) {
		return r.next.Complete(ctx, sessionID, systemPrompt, conversation)
	})
}

func (r *retryingClient) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	return retry(ctx, r, "summarize", func(ctx context.Context) (string, error) {
		return r.next.Summarize(ctx, sessionID, text)
	})
}

func retry[T any](ctx context.Context, r *retryingClient, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	log := observability.LoggerFromContext(ctx)

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		class := r.classify(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}
		if attempt >= r.policy.MaxRetries || (class == RetryClassMaybe && attempt >= maxMaybeRetries) {
			return zero, &RetryExhaustedError{Attempts: attempt, Err: err}
		}

		delay := backoff(r.policy, attempt)
		log.Warn("llm call failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"class", class,
			"error", err)

		if err := r.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}
}

// backoff is InitialDelay * Multiplier^attempt, capped at MaxDelay.
func backoff(policy RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if limit := float64(policy.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
