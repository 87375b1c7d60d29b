package db

import (
	"context"
	"errors"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_NoBeginner(t *testing.T) {
	_, _, err := WithTx(context.Background(), nil)
	if !errors.Is(err, ErrNoBeginner) {
		t.Errorf("expected ErrNoBeginner, got %v", err)
	}
}

func TestInlineTxRunner_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	var r TxRunner = InlineTxRunner{}
	calls := 0
	err := r.InTx(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected fn to run once, ran %d times", calls)
	}
}

func TestSchemaPattern(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"public", true},
		{"saude", true},
		{"saude_test_1", true},
		{"1abc", false},
		{"saude; DROP TABLE person", false},
		{"", false},
		{"a-b", false},
	}
	for _, tt := range tests {
		if got := schemaPattern.MatchString(tt.name); got != tt.valid {
			t.Errorf("schemaPattern(%q) = %v, want %v", tt.name, got, tt.valid)
		}
	}
}
