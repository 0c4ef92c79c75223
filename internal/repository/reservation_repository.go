package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/angelshop/reservation-api/internal/model"
)

// ReservationRepo is the durable store for reservations, their item
// snapshots and their append-only event history.  It has no knowledge of
// stock mechanics: items are frozen copies and the status column is the
// only mutable field, changed exclusively through TransitionStatus.
// All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ReservationFilter narrows admin listings.  Zero values mean "no filter".
type ReservationFilter struct {
	Status model.Status
	Email  string
	From   time.Time
	To     time.Time
}

// Create persists a reservation with its items and initial event in one
// transaction.  The generated ID and timestamps are populated on the
// passed struct.  A collision on the unique code index is reported as
// ErrCodeTaken so the caller can regenerate and retry.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const q = `INSERT INTO reservations
	           (code, customer_email, customer_name, customer_phone, customer_address, status, expires_at, items_count, subtotal_cents)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.Code, res.CustomerEmail, res.CustomerName, res.CustomerPhone, res.CustomerAddress,
		string(res.Status), res.ExpiresAt.UTC(), res.Totals.ItemsCount, res.Totals.SubtotalCents,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrCodeTaken
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	for _, it := range res.Items {
		const iq = `INSERT INTO reservation_items
		            (reservation_id, product_id, variant_sku, qty, price_snapshot_cents, name_snapshot, size, color)
		            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, iq, res.ID, it.ProductID, it.VariantSKU, it.Qty,
			it.PriceSnapshotCents, it.NameSnapshot, it.Size, it.Color); err != nil {
			return err
		}
	}
	for _, ev := range res.Events {
		if err := insertEventTx(ctx, tx, res.ID, ev); err != nil {
			return err
		}
	}
	// Read back timestamps set by DB defaults.
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM reservations WHERE id = ?`, res.ID,
	).Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertEventTx(ctx context.Context, tx *sql.Tx, reservationID uint64, ev model.ReservationEvent) error {
	meta := []byte("{}")
	if len(ev.Meta) > 0 {
		b, err := json.Marshal(ev.Meta)
		if err != nil {
			return err
		}
		meta = b
	}
	const q = `INSERT INTO reservation_events (reservation_id, type, at, meta) VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, reservationID, ev.Type, ev.At.UTC(), meta)
	return err
}

// TransitionStatus atomically moves a reservation from one of the
// allowed source statuses to the target status and appends the given
// event, all in one transaction.  It returns false when the reservation
// exists but its current status is not in allowedFrom — meaning another
// writer (a racing cancel, or the sweeper) got there first.  This
// guarded update is what serializes lifecycle transitions per code.
func (r *ReservationRepo) TransitionStatus(ctx context.Context, code string, allowedFrom []model.Status, to model.Status, ev model.ReservationEvent) (bool, error) {
	if len(allowedFrom) == 0 {
		return false, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(allowedFrom)), ",")
	args := make([]interface{}, 0, len(allowedFrom)+2)
	args = append(args, string(to), code)
	for _, s := range allowedFrom {
		args = append(args, string(s))
	}
	q := `UPDATE reservations SET status = ? WHERE code = ? AND status IN (` + placeholders + `)`
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	var id uint64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM reservations WHERE code = ?`, code).Scan(&id); err != nil {
		return false, err
	}
	if err := insertEventTx(ctx, tx, id, ev); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

// FindByCode loads a full reservation including items and events.
// Returns ErrReservationNotFound when no row exists.
func (r *ReservationRepo) FindByCode(ctx context.Context, code string) (*model.Reservation, error) {
	const q = `SELECT id, code, customer_email, customer_name, customer_phone, customer_address,
	                  status, expires_at, items_count, subtotal_cents, created_at, updated_at
	           FROM reservations WHERE code = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, code))
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var status string
	err := row.Scan(&res.ID, &res.Code, &res.CustomerEmail, &res.CustomerName,
		&res.CustomerPhone, &res.CustomerAddress, &status, &res.ExpiresAt,
		&res.Totals.ItemsCount, &res.Totals.SubtotalCents, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	return &res, nil
}

func (r *ReservationRepo) loadDetails(ctx context.Context, res *model.Reservation) error {
	const iq = `SELECT product_id, variant_sku, qty, price_snapshot_cents, name_snapshot, size, color
	            FROM reservation_items WHERE reservation_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, iq, res.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.ReservationItem
		if err := rows.Scan(&it.ProductID, &it.VariantSKU, &it.Qty,
			&it.PriceSnapshotCents, &it.NameSnapshot, &it.Size, &it.Color); err != nil {
			return err
		}
		res.Items = append(res.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const eq = `SELECT type, at, meta FROM reservation_events WHERE reservation_id = ? ORDER BY id`
	erows, err := r.db.QueryContext(ctx, eq, res.ID)
	if err != nil {
		return err
	}
	defer erows.Close()
	for erows.Next() {
		var ev model.ReservationEvent
		var meta []byte
		if err := erows.Scan(&ev.Type, &ev.At, &meta); err != nil {
			return err
		}
		if len(meta) > 0 && string(meta) != "{}" {
			if err := json.Unmarshal(meta, &ev.Meta); err != nil {
				return err
			}
		}
		res.Events = append(res.Events, ev)
	}
	return erows.Err()
}

// ListByEmail returns a customer's reservations, newest first, with
// items loaded.  The event trail is skipped in listings.
func (r *ReservationRepo) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	return r.list(ctx, ReservationFilter{Email: email}, false)
}

// ListForAdmin returns reservations matching the filter, newest first,
// with items and events loaded.
func (r *ReservationRepo) ListForAdmin(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	return r.list(ctx, f, true)
}

func (r *ReservationRepo) list(ctx context.Context, f ReservationFilter, withEvents bool) ([]model.Reservation, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if f.Email != "" {
		where = append(where, "customer_email = ?")
		args = append(args, f.Email)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	q := `SELECT id, code, customer_email, customer_name, customer_phone, customer_address,
	             status, expires_at, items_count, subtotal_cents, created_at, updated_at
	      FROM reservations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if withEvents {
			if err := r.loadDetails(ctx, &out[i]); err != nil {
				return nil, err
			}
		} else if err := r.loadItemsOnly(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ReservationRepo) loadItemsOnly(ctx context.Context, res *model.Reservation) error {
	const iq = `SELECT product_id, variant_sku, qty, price_snapshot_cents, name_snapshot, size, color
	            FROM reservation_items WHERE reservation_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, iq, res.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.ReservationItem
		if err := rows.Scan(&it.ProductID, &it.VariantSKU, &it.Qty,
			&it.PriceSnapshotCents, &it.NameSnapshot, &it.Size, &it.Color); err != nil {
			return err
		}
		res.Items = append(res.Items, it)
	}
	return rows.Err()
}

// ListExpired returns up to limit reservations that are past their
// deadline but still in an expirable status, oldest deadline first.
// Items are loaded because the caller needs them to release stock.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	const q = `SELECT id, code, customer_email, customer_name, customer_phone, customer_address,
	                  status, expires_at, items_count, subtotal_cents, created_at, updated_at
	           FROM reservations
	           WHERE status IN ('PENDING', 'CONFIRMED') AND expires_at <= ?
	           ORDER BY expires_at
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadItemsOnly(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SummaryRow is one day of the admin report: reservation count, subtotal
// volume and how many of those reservations expired.
type SummaryRow struct {
	Day           string `json:"day"`
	Count         int    `json:"count"`
	SubtotalCents int64  `json:"subtotal_cents"`
	Expired       int    `json:"expired"`
}

// DailySummary aggregates reservations per creation day within the
// optional [from, to] window.
func (r *ReservationRepo) DailySummary(ctx context.Context, from, to time.Time) ([]SummaryRow, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if !from.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, to.UTC())
	}
	q := `SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day,
	             COUNT(*),
	             COALESCE(SUM(subtotal_cents), 0),
	             SUM(CASE WHEN status = 'EXPIRED' THEN 1 ELSE 0 END)
	      FROM reservations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " GROUP BY day ORDER BY day"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SummaryRow, 0)
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.Day, &s.Count, &s.SubtotalCents, &s.Expired); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
