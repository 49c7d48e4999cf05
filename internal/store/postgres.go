package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"influencegen/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// DB exposes the pool so other components (the parameter store) can share it.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations in file name order. Statements are
// idempotent, so running it on every start is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(string(data)) {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const requestColumns = `id::text, params, status, images, COALESCE(error_message,''), COALESCE(error_code,''), COALESCE(n8n_execution_id,''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (model.GenerationRequest, error) {
	var r model.GenerationRequest
	var params, images []byte
	if err := row.Scan(&r.ID, &params, &r.Status, &images, &r.ErrorMessage, &r.ErrorCode, &r.N8NExecutionID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	if err := json.Unmarshal(params, &r.GenerationParams); err != nil {
		return r, fmt.Errorf("decode params for %s: %w", r.ID, err)
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &r.Images); err != nil {
			return r, fmt.Errorf("decode images for %s: %w", r.ID, err)
		}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (p *Postgres) CreateGenerationRequest(ctx context.Context, gp model.GenerationParams) (model.GenerationRequest, error) {
	params, err := json.Marshal(gp)
	if err != nil {
		return model.GenerationRequest{}, err
	}
	id := uuid.New()
	row := p.db.QueryRowContext(ctx, `INSERT INTO generation_requests (id, influencer_profile_id, params, status)
        VALUES ($1,$2,$3,$4) RETURNING `+requestColumns, id, gp.InfluencerProfileID, params, model.StatusQueued)
	return scanRequest(row)
}

func (p *Postgres) GetGenerationRequest(ctx context.Context, id string) (model.GenerationRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.GenerationRequest{}, ErrNotFound
	}
	return scanRequest(p.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM generation_requests WHERE id=$1`, id))
}

func (p *Postgres) ListGenerationRequests(ctx context.Context, profileID int64, cursor string, limit int) ([]model.GenerationRequest, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + requestColumns + ` FROM generation_requests WHERE ($1 = 0 OR influencer_profile_id = $1)`
	args := []any{profileID}
	if cursor != "" {
		q += ` AND id::text > $2 ORDER BY id LIMIT $3`
		args = append(args, cursor, limit+1)
	} else {
		q += ` ORDER BY id LIMIT $2`
		args = append(args, limit+1)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.GenerationRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	out, next := trimPage(out, limit, func(r model.GenerationRequest) string { return r.ID })
	return out, next, nil
}

func (p *Postgres) MarkGenerationDispatched(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE generation_requests SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		model.StatusDispatched, id, model.StatusQueued)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM generation_requests WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (p *Postgres) ApplyGenerationResult(ctx context.Context, res model.GenerationResult) (model.GenerationRequest, error) {
	if _, err := uuid.Parse(res.RequestID); err != nil {
		return model.GenerationRequest{}, ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.GenerationRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM generation_requests WHERE id=$1 FOR UPDATE`, res.RequestID))
	if err != nil {
		return model.GenerationRequest{}, err
	}
	if cur.Final() {
		return cur, ErrAlreadyFinal
	}
	var images any
	if len(res.Images) > 0 {
		b, err := json.Marshal(res.Images)
		if err != nil {
			return model.GenerationRequest{}, err
		}
		images = b
	}
	updated, err := scanRequest(tx.QueryRowContext(ctx, `UPDATE generation_requests
        SET status=$2, images=$3, error_message=$4, error_code=$5, n8n_execution_id=$6, updated_at=now()
        WHERE id=$1 RETURNING `+requestColumns,
		res.RequestID, resultStatus(res), images, nullIfEmpty(res.ErrorMessage), nullIfEmpty(res.ErrorCode), nullIfEmpty(res.N8NExecutionID)))
	if err != nil {
		return model.GenerationRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.GenerationRequest{}, err
	}
	return updated, nil
}

// Webhook deliveries

func (p *Postgres) EnqueueDelivery(ctx context.Context, eventType, url, dedupKey string, payload []byte) (string, error) {
	if dedupKey == "" {
		dedupKey = DedupKey(payload)
	}
	var id string
	err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, event_type, url, dedup_key, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,'pending',0,now())
        ON CONFLICT (event_type, url, dedup_key) DO UPDATE SET dedup_key=EXCLUDED.dedup_key
        RETURNING id::text`, uuid.New(), eventType, url, dedupKey, payload).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

const deliveryColumns = `id::text, event_type, url, dedup_key, payload, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at, created_at`

func scanDelivery(row rowScanner) (Delivery, error) {
	var d Delivery
	var delivered sql.NullTime
	if err := row.Scan(&d.ID, &d.EventType, &d.URL, &d.DedupKey, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt,
		&d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered, &d.CreatedAt); err != nil {
		return d, err
	}
	if delivered.Valid {
		t := delivered.Time.UTC()
		d.DeliveredAt = &t
	}
	return d, nil
}

func (p *Postgres) FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
		id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListDeliveries(ctx context.Context, status, cursor string, limit int) ([]Delivery, string, error) {
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`, status, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	out, next := trimPage(out, limit, func(d Delivery) string { return d.ID })
	return out, next, nil
}

// Audit log

func (p *Postgres) AppendAudit(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = model.OutcomeSuccess
	}
	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return e, err
		}
		details = b
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO audit_log (id, ts, actor, event_type, target_model, target_id, action, outcome, details, ip_address)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Timestamp, nullIfEmpty(e.Actor), e.EventType, nullIfEmpty(e.TargetModel), nullIfEmpty(e.TargetID),
		e.Action, e.Outcome, details, nullIfEmpty(e.IPAddress))
	return e, err
}

func (p *Postgres) ListAudit(ctx context.Context, eventType, cursor string, limit int) ([]model.AuditEntry, string, error) {
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, ts, COALESCE(actor,''), event_type, COALESCE(target_model,''), COALESCE(target_id,''),
            action, outcome, details, COALESCE(ip_address,'')
        FROM audit_log
        WHERE ($1 = '' OR event_type = $1)
          AND ($2 = '' OR seq < (SELECT seq FROM audit_log WHERE id::text = $2))
        ORDER BY seq DESC LIMIT $3`, eventType, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.EventType, &e.TargetModel, &e.TargetID, &e.Action, &e.Outcome, &details, &e.IPAddress); err != nil {
			return nil, "", err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	out, next := trimPage(out, limit, func(e model.AuditEntry) string { return e.ID })
	return out, next, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
