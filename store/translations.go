package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bosley/signspeak/classifier"
)

// TranslationRepo is the persisted, unbounded translation log.
type TranslationRepo struct {
	db *DB
}

func NewTranslationRepo(db *DB) *TranslationRepo {
	return &TranslationRepo{db: db}
}

func (r *TranslationRepo) Append(ctx context.Context, userID string, res classifier.Result) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO translations (id, user_id, prediction, confidence, description, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.New().String(), userID, res.Label, res.Confidence, res.Description, utc(res.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert translation: %w", err)
	}
	return nil
}

// ListRecent returns up to limit entries for userID, newest first by
// capture time.
func (r *TranslationRepo) ListRecent(ctx context.Context, userID string, limit int) ([]classifier.Result, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT prediction, confidence, description, captured_at
		 FROM translations WHERE user_id = ?
		 ORDER BY captured_at DESC LIMIT ?`),
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer rows.Close()

	results := make([]classifier.Result, 0, limit)
	for rows.Next() {
		var res classifier.Result
		if err := rows.Scan(&res.Label, &res.Confidence, &res.Description, &res.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
