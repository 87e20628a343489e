package vision

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	failing := WithError(errors.New("provider 1 failed"))
	working := NewMock(Result{Text: []string{"From working provider"}})

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}

	res, err := chain.Analyze(context.Background(), []byte{1}, MIMEJPEG)
	if err != nil {
		t.Fatalf("Chain analyze failed: %v", err)
	}
	if res.Text[0] != "From working provider" {
		t.Errorf("Unexpected response: %+v", res)
	}
	if failing.CallCount() != 1 || working.CallCount() != 1 {
		t.Errorf("Expected one call each, got %d and %d", failing.CallCount(), working.CallCount())
	}
}

func TestChainAllFail(t *testing.T) {
	chain, _ := NewChain(
		WithError(errors.New("provider 1 failed")),
		WithError(&APIError{StatusCode: 500, Provider: "p2"}),
	)

	_, err := chain.Analyze(context.Background(), []byte{1}, MIMEJPEG)

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
	if Classify(err) != KindAPI {
		t.Errorf("Expected last error to classify as API, got %v", Classify(err))
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &Mock{AnalyzeFunc: func(ctx context.Context, image []byte, mimeType string) (*Result, error) {
		cancel()
		return nil, ctx.Err()
	}}
	second := NewMock(Result{})

	chain, _ := NewChain(first, second)
	_, err := chain.Analyze(ctx, []byte{1}, MIMEJPEG)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if second.CallCount() != 0 {
		t.Error("Second provider should not be called after cancel")
	}
}

func TestNewChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable, got %v", err)
	}
}
