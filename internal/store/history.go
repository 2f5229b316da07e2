package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/campusshield/internal/model"
)

// ScanRecord is one stored verdict.
type ScanRecord struct {
	// ID is the unique identifier of the record in the database.
	ID int64

	// Origin is the page origin the scan ran on.
	Origin string

	// Timestamp is when the verdict was stored.
	Timestamp time.Time

	// Result is the verdict.
	Result model.ScanResult
}

// SaveScan stores the verdict of a completed scan and returns its ID.
func (s *DB) SaveScan(ctx context.Context, origin string, result model.ScanResult) (int64, error) {
	result = result.Normalize()

	explanations, err := json.Marshal(result.Explanations)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize explanations: %w", err)
	}
	links, err := json.Marshal(result.SuspiciousLinks)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize links: %w", err)
	}

	query := `
	INSERT INTO scans (origin, risk_level, confidence, explanations, suspicious_links)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		origin,
		string(result.RiskLevel),
		result.ConfidenceScore,
		string(explanations),
		string(links),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan: %w", err)
	}
	return res.LastInsertId()
}

// ListScans returns the most recent verdicts, newest first.
// A non-positive limit returns every record.
func (s *DB) ListScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	query := `
	SELECT id, origin, timestamp, risk_level, confidence, explanations, suspicious_links
	FROM scans
	ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var (
			rec          ScanRecord
			timestamp    string
			risk         string
			explanations sql.NullString
			links        sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Origin, &timestamp, &risk,
			&rec.Result.ConfidenceScore, &explanations, &links); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.Timestamp = parseTimestamp(timestamp)
		rec.Result.RiskLevel = model.ParseRiskLevel(risk)
		if explanations.Valid {
			_ = json.Unmarshal([]byte(explanations.String), &rec.Result.Explanations) //nolint:errcheck // malformed rows degrade to empty lists
		}
		if links.Valid {
			_ = json.Unmarshal([]byte(links.String), &rec.Result.SuspiciousLinks) //nolint:errcheck // malformed rows degrade to empty lists
		}
		rec.Result = rec.Result.Normalize()

		records = append(records, rec)
	}

	return records, rows.Err()
}
