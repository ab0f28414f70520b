package migrations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"trivia-live-service/internal/domain"
)

// SeedQuestionSet upserts set into question_sets.
func SeedQuestionSet(ctx context.Context, db *bun.DB, set domain.QuestionSet) error {
	data, err := json.Marshal(set.Questions)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO question_sets (id, title, questions) VALUES (?, ?, ?::jsonb)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, questions = EXCLUDED.questions, updated_at = now()`,
		set.ID, set.Title, string(data))
	if err != nil {
		return fmt.Errorf("seed question set %s: %w", set.ID, err)
	}
	return nil
}
