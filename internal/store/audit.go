// ABOUTME: Tool call audit store methods for SQLiteStore
// ABOUTME: Records every tool invocation with outcome and latency for debugging

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordToolCall appends a tool call to the audit table.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) RecordToolCall(ctx context.Context, c *ToolCall) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var errText *string
	if !c.OK && c.Error != "" {
		errText = &c.Error
	}

	query := `
		INSERT INTO tool_calls (id, request_id, transport, client_id, tool_name, ok, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.RequestID,
		c.Transport,
		c.ClientID,
		c.ToolName,
		boolToInt(c.OK),
		errText,
		c.Duration.Milliseconds(),
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call",
		"id", c.ID,
		"tool_name", c.ToolName,
		"transport", c.Transport,
		"ok", c.OK,
	)
	return nil
}

const toolCallQuery = `
	SELECT id, request_id, transport, client_id, tool_name, ok, error, duration_ms, created_at
	FROM tool_calls
	WHERE (? = '' OR tool_name = ?)
	  AND (? = '' OR transport = ?)
	  AND (? IS NULL OR created_at >= ?)
	  AND (? = 0 OR ok = 0)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListToolCalls returns tool calls matching filter, newest first.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error) {
	var since *string
	if f.Since != nil {
		str := formatTime(*f.Since)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, toolCallQuery,
		f.ToolName, f.ToolName,
		f.Transport, f.Transport,
		since, since,
		boolToInt(f.FailedOnly),
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var calls []ToolCall
	for rows.Next() {
		c, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}
	return calls, nil
}

// ToolCallStats aggregates calls per tool, busiest first.
func (s *SQLiteStore) ToolCallStats(ctx context.Context) ([]ToolStat, error) {
	query := `
		SELECT tool_name, COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), AVG(duration_ms)
		FROM tool_calls
		GROUP BY tool_name
		ORDER BY COUNT(*) DESC, tool_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tool stats: %w", err)
	}
	defer rows.Close()

	var stats []ToolStat
	for rows.Next() {
		var st ToolStat
		var avgMS float64
		if err := rows.Scan(&st.ToolName, &st.Calls, &st.Failures, &avgMS); err != nil {
			return nil, fmt.Errorf("scanning tool stat: %w", err)
		}
		st.AvgDuration = time.Duration(avgMS * float64(time.Millisecond))
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool stats: %w", err)
	}
	return stats, nil
}

// scanToolCall scans a row into a ToolCall.
func scanToolCall(scanner interface{ Scan(dest ...any) error }) (ToolCall, error) {
	var c ToolCall
	var ok int
	var errText *string
	var durationMS int64
	var createdAt string

	if err := scanner.Scan(
		&c.ID,
		&c.RequestID,
		&c.Transport,
		&c.ClientID,
		&c.ToolName,
		&ok,
		&errText,
		&durationMS,
		&createdAt,
	); err != nil {
		return c, fmt.Errorf("scanning tool call: %w", err)
	}

	c.OK = ok != 0
	if errText != nil {
		c.Error = *errText
	}
	c.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return c, fmt.Errorf("parsing timestamp: %w", err)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
