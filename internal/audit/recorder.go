// Package audit persists security-relevant events: authorization decisions,
// invite redemptions, and administrative actions. Audit events are
// intentionally separate from application logs because they have different
// consumers and retention requirements. Application logs are ephemeral debug
// output consumed by on-call engineers, while audit events are immutable
// records consumed by security teams and may be subject to compliance
// retention policies measured in years.
//
// Events are written to Postgres asynchronously so the request path never
// blocks on the audit database. A failed write is logged and dropped; the
// audit trail is best-effort by construction, never a gate on requests.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/safego"
)

// Event kinds.
const (
	KindDecision   = "decision"
	KindRedemption = "redemption"
	KindAdmin      = "admin"
)

// Event is one audit record.
type Event struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	SubjectID string                 `json:"subject_id,omitempty"`
	Action    string                 `json:"action"`
	Outcome   string                 `json:"outcome"`
	Reason    string                 `json:"reason,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Filters narrows a List query. Nil fields are not applied.
type Filters struct {
	SubjectID *string
	Kind      *string
	Action    *string
	StartDate *time.Time
	EndDate   *time.Time
}

// Recorder writes and reads audit events.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a Recorder over the audit database.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record writes one event synchronously. Most callers want RecordAsync.
func (r *Recorder) Record(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var metadataJSON []byte
	var err error
	if ev.Metadata != nil {
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (id, kind, subject_id, action, outcome, reason, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		ev.ID,
		ev.Kind,
		nullable(ev.SubjectID),
		ev.Action,
		ev.Outcome,
		nullable(ev.Reason),
		nullable(ev.IPAddress),
		metadataJSON,
		ev.CreatedAt,
	)
	return err
}

// RecordAsync writes the event in the background. Never blocks the caller;
// failures are logged and dropped.
func (r *Recorder) RecordAsync(ev *Event) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Record(ctx, ev); err != nil {
			slog.Error("audit event write failed", "kind", ev.Kind, "action", ev.Action, "error", err)
		}
	})
}

// List retrieves events matching the filters, newest first, with the total
// count across all pages.
func (r *Recorder) List(ctx context.Context, filters Filters, limit, offset int) ([]*Event, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_events WHERE 1=1`
	query := `
		SELECT id, kind, subject_id, action, outcome, reason, ip_address, metadata, created_at
		FROM audit_events
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	appendFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.SubjectID != nil {
		appendFilter(` AND subject_id = $%d`, *filters.SubjectID)
	}
	if filters.Kind != nil {
		appendFilter(` AND kind = $%d`, *filters.Kind)
	}
	if filters.Action != nil {
		appendFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.StartDate != nil {
		appendFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		appendFilter(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		ev := &Event{}
		var subjectID, reason, ipAddress sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&ev.ID,
			&ev.Kind,
			&subjectID,
			&ev.Action,
			&ev.Outcome,
			&reason,
			&ipAddress,
			&metadataJSON,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}

		ev.SubjectID = subjectID.String
		ev.Reason = reason.String
		ev.IPAddress = ipAddress.String
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &ev.Metadata); err != nil {
				return nil, 0, err
			}
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// nullable maps the empty string onto SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
