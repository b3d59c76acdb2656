package events

import (
	"context"
	"database/sql"
	"time"

	"tickler/internal/domain"
)

// Writer appends fired alerts to the alert log table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, platform string, alert domain.Alert) error {
	ts := alert.FiredAt
	if ts.IsZero() {
		if w.Now == nil {
			w.Now = time.Now
		}
		ts = w.Now()
	}
	_, err := w.DB.ExecContext(ctx, `INSERT INTO alerts(ts,task_id,title,body,platform) VALUES (?,?,?,?,?)`,
		ts.UTC().Format(time.RFC3339), alert.TaskID, alert.Title, alert.Body, platform)
	return err
}

// Latest returns up to n records, newest first, optionally for one task.
func (w Writer) Latest(ctx context.Context, n int, taskID string) ([]domain.AlertRecord, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,task_id,title,body,platform FROM alerts`
	args := []any{}
	if taskID != "" {
		query += ` WHERE task_id=?`
		args = append(args, taskID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.AlertRecord{}
	for rows.Next() {
		var rec domain.AlertRecord
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.TaskID, &rec.Title, &rec.Body, &rec.Platform); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
