package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/michibiki-ai/michibiki/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestBuildRecommendationWhereClause_Empty(t *testing.T) {
	clause, args := buildRecommendationWhereClause(model.RecommendationFilters{}, 1)
	if clause != "" {
		t.Errorf("clause = %q, want empty", clause)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuildRecommendationWhereClause_Single(t *testing.T) {
	filters := model.RecommendationFilters{CampaignID: ptr("camp-cp-001")}
	clause, args := buildRecommendationWhereClause(filters, 1)
	if clause != " WHERE campaign_id = $1" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 1 || args[0] != "camp-cp-001" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildRecommendationWhereClause_All(t *testing.T) {
	filters := model.RecommendationFilters{
		CampaignID:  ptr("camp-cp-001"),
		Decision:    ptr(model.DecisionPending),
		Workflow:    ptr(model.WorkflowBidAdjustment),
		NeedsReview: ptr(true),
	}
	clause, args := buildRecommendationWhereClause(filters, 1)
	want := " WHERE campaign_id = $1 AND human_decision = $2 AND workflow_type = $3 AND needs_review = $4"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v, want 4", args)
	}
}

func TestBuildRecommendationWhereClause_StartIndex(t *testing.T) {
	filters := model.RecommendationFilters{Decision: ptr(model.DecisionApproved), NeedsReview: ptr(false)}
	clause, args := buildRecommendationWhereClause(filters, 3)
	want := " WHERE human_decision = $3 AND needs_review = $4"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v, want 2", args)
	}
}

func TestWithRetry_NonRetriableReturnsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("constraint violation")
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_RetriableExhaustsBudget(t *testing.T) {
	calls := 0
	serialization := &pgconn.PgError{Code: "40001"}
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return serialization
	})

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Fatalf("err = %v, want the serialization failure", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_SucceedsAfterConflict(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, 3, time.Hour, func() error {
		return &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestIsRetriable(t *testing.T) {
	if !isRetriable(&pgconn.PgError{Code: "40001"}) {
		t.Error("serialization failure should be retriable")
	}
	if !isRetriable(&pgconn.PgError{Code: "40P01"}) {
		t.Error("deadlock should be retriable")
	}
	if isRetriable(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation should not be retriable")
	}
	if isRetriable(errors.New("plain")) {
		t.Error("plain errors should not be retriable")
	}
}
