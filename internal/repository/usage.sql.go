package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertUsageRecord = `
INSERT INTO usage_records (id, user_id, type, count, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, type, count, metadata, created_at
`

type InsertUsageRecordParams struct {
	ID        uuid.UUID
	UserID    string
	Type      string
	Count     int32
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
}

func (q *Queries) InsertUsageRecord(ctx context.Context, arg InsertUsageRecordParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, insertUsageRecord,
		arg.ID,
		arg.UserID,
		arg.Type,
		arg.Count,
		arg.Metadata,
		arg.CreatedAt,
	)
	var i UsageRecord
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Count,
		&i.Metadata,
		&i.CreatedAt,
	)
	return i, err
}

const sumUsage = `
SELECT COALESCE(SUM(count), 0)::bigint
FROM usage_records
WHERE user_id = $1
  AND type = $2
  AND created_at >= $3
  AND created_at <= $4
`

type SumUsageParams struct {
	UserID      string
	Type        string
	WindowStart time.Time
	WindowEnd   time.Time
}

func (q *Queries) SumUsage(ctx context.Context, arg SumUsageParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, sumUsage, arg.UserID, arg.Type, arg.WindowStart, arg.WindowEnd)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const deleteUsageRecordsBefore = `
DELETE FROM usage_records
WHERE created_at < $1
`

func (q *Queries) DeleteUsageRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteUsageRecordsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
