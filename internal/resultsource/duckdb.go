// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package resultsource

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
)

// DuckDBSource reads evidence rows from a DuckDB database, typically a
// crawl-export file. Column names come from the evidence field map;
// extra columns beyond the mapped ones are carried through verbatim.
type DuckDBSource struct {
	db        *sql.DB
	table     string
	fields    config.EvidenceFields
	chunkSize int
}

// OpenDuckDB opens the evidence database read-only.
func OpenDuckDB(cfg *config.ResultSourceConfig, fields config.EvidenceFields) (*DuckDBSource, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("result source DSN is required for the duckdb driver")
	}
	if err := validateIdentifier(cfg.Table); err != nil {
		return nil, fmt.Errorf("evidence table: %w", err)
	}
	if err := validateIdentifier(fields.TaskID); err != nil {
		return nil, fmt.Errorf("evidence task id column: %w", err)
	}
	db, err := sql.Open("duckdb", cfg.DSN+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("open evidence database: %w", err)
	}
	return &DuckDBSource{
		db:        db,
		table:     cfg.Table,
		fields:    fields,
		chunkSize: cfg.ChunkSize,
	}, nil
}

// Close releases the database handle.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// validateIdentifier rejects table/column names that cannot be safely
// interpolated. Placeholders cannot stand in for identifiers, so these
// come from validated config only.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier is empty")
	}
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// FetchByTaskIDs reads evidence rows in chunked IN queries. All columns
// are selected so unmapped ones survive as pass-through payload fields.
func (s *DuckDBSource) FetchByTaskIDs(ctx context.Context, taskIDs []int64) ([]models.CaptureRow, error) {
	ids := dedupIDs(taskIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	chunkSize := s.chunkSize
	if chunkSize <= 0 {
		chunkSize = len(ids)
	}

	var rows []models.CaptureRow
	for start := 0; start < len(ids); start += chunkSize {
		chunk := ids[start:min(start+chunkSize, len(ids))]
		fetched, err := s.queryChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		rows = append(rows, fetched...)
	}
	logging.Ctx(ctx).Debug().
		Int("task_ids", len(ids)).
		Int("rows", len(rows)).
		Msg("evidence rows fetched from duckdb")
	return rows, nil
}

func (s *DuckDBSource) queryChunk(ctx context.Context, chunk []int64) ([]models.CaptureRow, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)", s.table, s.fields.TaskID, placeholders)
	args := make([]any, len(chunk))
	for i, id := range chunk {
		args[i] = id
	}

	sqlRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence rows: %w", err)
	}
	defer sqlRows.Close()

	columns, err := sqlRows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read evidence columns: %w", err)
	}

	var out []models.CaptureRow
	for sqlRows.Next() {
		values := make([]any, len(columns))
		scans := make([]any, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := sqlRows.Scan(scans...); err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}

		cells := make(map[string]any, len(columns))
		for i, col := range columns {
			cells[col] = values[i]
		}
		out = append(out, s.decodeRow(cells))
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence rows: %w", err)
	}
	return out, nil
}

func (s *DuckDBSource) decodeRow(cells map[string]any) models.CaptureRow {
	row := models.CaptureRow{
		TaskID:    cellInt(cells[s.fields.TaskID]),
		ItemID:    cellString(cells[s.fields.ItemID]),
		Duration:  cellFloat(cells[s.fields.Duration]),
		UserID:    cellString(cells[s.fields.UserID]),
		UserName:  cellString(cells[s.fields.UserName]),
		UserAlias: cellString(cells[s.fields.UserAlias]),
	}
	mapped := map[string]struct{}{
		s.fields.TaskID: {}, s.fields.ItemID: {}, s.fields.Duration: {},
		s.fields.UserID: {}, s.fields.UserName: {}, s.fields.UserAlias: {},
	}
	for col, value := range cells {
		if _, ok := mapped[col]; ok {
			continue
		}
		if value == nil {
			continue
		}
		if row.Extra == nil {
			row.Extra = make(map[string]any)
		}
		row.Extra[col] = value
	}
	if row.ItemID == "" {
		// A stable fallback id keeps distinct-item dedup working for
		// exports whose item id column is NULL.
		row.ItemID = fmt.Sprintf("row:%s", rowDigest(cells))
	}
	return row
}

// rowDigest produces a deterministic hash of all row cells, so rows that
// differ in any column get distinct fallback item ids across runs.
func rowDigest(cells map[string]any) string {
	cols := make([]string, 0, len(cells))
	for col := range cells {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var canonical strings.Builder
	for _, col := range cols {
		fmt.Fprintf(&canonical, "%s=%v|", col, cells[col])
	}

	hash := sha256.Sum256([]byte(canonical.String()))
	return hex.EncodeToString(hash[:8])
}

func cellString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case []byte:
		return strings.TrimSpace(string(value))
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return strings.Trim(string(raw), `"`)
	}
}

func cellInt(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case int32:
		return int64(value)
	case int:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

func cellFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int64:
		return float64(value)
	case int32:
		return float64(value)
	case int:
		return float64(value)
	default:
		return 0
	}
}
