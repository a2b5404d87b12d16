package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// recommendationColumns is the canonical SELECT list. Scan order in
// scanRecommendation must match.
const recommendationColumns = `
	id, campaign_id, workflow_type, confidence, risk_level, reasoning,
	specific_actions, expected_impact, timeline, success_criteria,
	alternatives, root_cause, analysis, context, needs_review,
	critique_notes, human_decision, human_feedback, decided_by, decided_at,
	model_version, regeneration_count, generation_ms, created_at`

// CreateRecommendation inserts a finalized recommendation in the pending
// state. embedding may be the zero vector when no embedding provider is
// configured; precedent lookups then skip the row.
func (db *DB) CreateRecommendation(ctx context.Context, rec model.Recommendation, embedding *pgvector.Vector) error {
	actions, err := json.Marshal(rec.SpecificActions)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal actions: %w", err)
	}
	criteria, err := json.Marshal(rec.SuccessCriteria)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal criteria: %w", err)
	}
	alternatives, err := json.Marshal(rec.Alternatives)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal alternatives: %w", err)
	}
	analysis, err := json.Marshal(rec.Analysis)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal analysis: %w", err)
	}
	contextJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal context: %w", err)
	}
	notes, err := json.Marshal(rec.CritiqueNotes)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: marshal critique notes: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO recommendations (
			id, campaign_id, workflow_type, confidence, risk_level, reasoning,
			specific_actions, expected_impact, timeline, success_criteria,
			alternatives, root_cause, analysis, context, needs_review,
			critique_notes, human_decision, model_version,
			regeneration_count, generation_ms, embedding, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		rec.ID, rec.CampaignID, rec.Workflow, rec.Confidence, rec.Risk, rec.Reasoning,
		actions, rec.ExpectedImpact, rec.Timeline, criteria,
		alternatives, rec.Analysis.RootCause, analysis, contextJSON, rec.NeedsReview,
		notes, model.DecisionPending, rec.ModelVersion,
		rec.Regenerations, rec.GenerationMS, embedding, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create recommendation: %w", err)
	}
	return nil
}

// GetRecommendation fetches one recommendation by ID.
func (db *DB) GetRecommendation(ctx context.Context, id uuid.UUID) (model.Recommendation, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT`+recommendationColumns+` FROM recommendations WHERE id = $1`, id)
	rec, err := scanRecommendation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Recommendation{}, ErrNotFound
	}
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("storage: get recommendation: %w", err)
	}
	return rec, nil
}

// ListRecommendations returns recommendations matching the filters, newest
// first.
func (db *DB) ListRecommendations(ctx context.Context, filters model.RecommendationFilters, limit, offset int) ([]model.Recommendation, error) {
	where, args := buildRecommendationWhereClause(filters, 1)
	args = append(args, limit, offset)

	query := `SELECT` + recommendationColumns + ` FROM recommendations` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list recommendations: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecordDecision applies a human decision to a pending recommendation and
// returns the updated row. The single guarded UPDATE makes concurrent
// decisions race-safe: exactly one writer sees a pending row, the rest get
// ErrDecisionConflict (or ErrNotFound when the row never existed).
func (db *DB) RecordDecision(ctx context.Context, id uuid.UUID, decision model.DecisionStatus, feedback *string, decidedBy string) (model.Recommendation, error) {
	row := db.pool.QueryRow(ctx, `
		UPDATE recommendations
		SET human_decision = $2,
		    human_feedback = $3,
		    decided_by = $4,
		    decided_at = now()
		WHERE id = $1 AND human_decision = $5
		RETURNING`+recommendationColumns,
		id, decision, feedback, decidedBy, model.DecisionPending,
	)

	rec, err := scanRecommendation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows means either no such recommendation or a lost race.
		var exists bool
		if checkErr := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM recommendations WHERE id = $1)`, id,
		).Scan(&exists); checkErr != nil {
			return model.Recommendation{}, fmt.Errorf("storage: record decision: %w", checkErr)
		}
		if exists {
			return model.Recommendation{}, ErrDecisionConflict
		}
		return model.Recommendation{}, ErrNotFound
	}
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("storage: record decision: %w", err)
	}
	return rec, nil
}

// CountPrecedents returns how many stored recommendations share the root
// cause and sit within maxDistance (cosine) of the embedding, and how many
// of those were approved. Rows without an embedding are excluded.
func (db *DB) CountPrecedents(ctx context.Context, rootCause model.RootCause, embedding pgvector.Vector, maxDistance float64) (approved, total int, err error) {
	err = db.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE human_decision = 'approved'),
			count(*)
		FROM recommendations
		WHERE root_cause = $1
		  AND embedding IS NOT NULL
		  AND embedding <=> $2 < $3`,
		rootCause, embedding, maxDistance,
	).Scan(&approved, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: count precedents: %w", err)
	}
	return approved, total, nil
}

// buildRecommendationWhereClause assembles the WHERE clause for list
// queries. startArgIdx is the placeholder index of the first argument.
func buildRecommendationWhereClause(filters model.RecommendationFilters, startArgIdx int) (string, []any) {
	var conditions []string
	var args []any
	idx := startArgIdx

	if filters.CampaignID != nil {
		conditions = append(conditions, fmt.Sprintf("campaign_id = $%d", idx))
		args = append(args, *filters.CampaignID)
		idx++
	}
	if filters.Decision != nil {
		conditions = append(conditions, fmt.Sprintf("human_decision = $%d", idx))
		args = append(args, *filters.Decision)
		idx++
	}
	if filters.Workflow != nil {
		conditions = append(conditions, fmt.Sprintf("workflow_type = $%d", idx))
		args = append(args, *filters.Workflow)
		idx++
	}
	if filters.NeedsReview != nil {
		conditions = append(conditions, fmt.Sprintf("needs_review = $%d", idx))
		args = append(args, *filters.NeedsReview)
		idx++
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanRecommendation reads one row in recommendationColumns order.
func scanRecommendation(row pgx.Row) (model.Recommendation, error) {
	var (
		rec          model.Recommendation
		actions      []byte
		criteria     []byte
		alternatives []byte
		rootCause    string
		analysis     []byte
		contextJSON  []byte
		notes        []byte
	)

	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.Workflow, &rec.Confidence, &rec.Risk, &rec.Reasoning,
		&actions, &rec.ExpectedImpact, &rec.Timeline, &criteria,
		&alternatives, &rootCause, &analysis, &contextJSON, &rec.NeedsReview,
		&notes, &rec.Decision, &rec.Feedback, &rec.DecidedBy, &rec.DecidedAt,
		&rec.ModelVersion, &rec.Regenerations, &rec.GenerationMS, &rec.CreatedAt,
	)
	if err != nil {
		return model.Recommendation{}, err
	}

	if err := json.Unmarshal(actions, &rec.SpecificActions); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal specific_actions: %w", err)
	}
	if err := json.Unmarshal(criteria, &rec.SuccessCriteria); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal success_criteria: %w", err)
	}
	if err := json.Unmarshal(alternatives, &rec.Alternatives); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal alternatives: %w", err)
	}
	if err := json.Unmarshal(analysis, &rec.Analysis); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &rec.Context); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal(notes, &rec.CritiqueNotes); err != nil {
		return model.Recommendation{}, fmt.Errorf("unmarshal critique_notes: %w", err)
	}
	return rec, nil
}
