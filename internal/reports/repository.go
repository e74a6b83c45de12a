package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a postgres-backed report store.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "reports"),
	}
}

func (r *repo) Append(ctx context.Context, userID string, results any, meta Metadata) (*StoredReport, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	report := StoredReport{
		ID:       uuid.New(),
		Results:  resultsJSON,
		Metadata: meta,
	}

	q := `INSERT INTO reports(id, user_id, results, metadata)
		VALUES($1, $2, $3, $4)
		RETURNING created_at`

	if err := r.db.QueryRowContext(ctx, q, report.ID, userID, resultsJSON, metaJSON).Scan(&report.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	r.logger.Info("report saved", "id", report.ID, "user_id", userID, "file", meta.FileName)
	return &report, nil
}

func (r *repo) History(ctx context.Context, userID string) ([]StoredReport, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	q := `SELECT id, results, metadata, created_at
		FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []StoredReport
	for rows.Next() {
		var (
			report   StoredReport
			metaJSON []byte
		)
		if err := rows.Scan(&report.ID, &report.Results, &metaJSON, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &report.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		history = append(history, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	return history, nil
}
