package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/fitassess/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// Record is a stored summary in the user's test history.
type Record struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	TestID    string    `json:"testId"`
	Summary   Summary   `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

type Stats struct {
	TotalTests   int     `json:"totalTests"`
	BestScore    int     `json:"bestScore"`
	AverageScore float64 `json:"averageScore"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, record *Record) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.results.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	summaryJSON, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO results (user_id, test_id, overall_score, summary, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id;`,
		record.UserID, record.TestID, record.Summary.OverallScore, summaryJSON, record.CreatedAt,
	)
	if err := row.Scan(&record.ID); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	span.SetAttributes(attribute.Int("result.id", record.ID))
	return nil
}

// ListForUser returns the user's results, newest first.
func (r *Repo) ListForUser(ctx context.Context, userID int, limit int) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.results.listForUser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, test_id, summary, created_at
			FROM results
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2;`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var summaryJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TestID, &summaryJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *Repo) Stats(ctx context.Context, userID int) (_ Stats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.results.stats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var stats Stats
	row := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*), COALESCE(MAX(overall_score), 0), COALESCE(AVG(overall_score), 0)::float8
			FROM results WHERE user_id = $1;`,
		userID,
	)
	if err := row.Scan(&stats.TotalTests, &stats.BestScore, &stats.AverageScore); err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	stats.AverageScore = round1(stats.AverageScore)

	return stats, nil
}
