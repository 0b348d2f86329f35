package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore implements Store, SlotCounter and Catalog with pgx directly
// (no ORM).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, organizer_id, name, description, starts_on, ends_on,
	registration_start, registration_end, capacity, reserved, base_price,
	status, feedback, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.StartsOn, &e.EndsOn,
		&e.Registration.Start, &e.Registration.End, &e.Capacity, &e.Reserved, &e.BasePrice,
		&e.Status, &e.Feedback, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts the event with its kits and categories in one transaction.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event, kits []model.Kit, categories []model.Category) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13, $14)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.StartsOn, e.EndsOn,
		e.Registration.Start, e.Registration.End, e.Capacity, e.BasePrice,
		e.Status, e.Feedback, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	for _, k := range kits {
		if _, err = tx.Exec(ctx,
			`INSERT INTO kits (id, event_id, name, surcharge) VALUES ($1, $2, $3, $4)`,
			k.ID, k.EventID, k.Name, k.Surcharge,
		); err != nil {
			return fmt.Errorf("insert kit: %w", err)
		}
	}
	for _, c := range categories {
		if _, err = tx.Exec(ctx,
			`INSERT INTO categories (id, event_id, name) VALUES ($1, $2, $3)`,
			c.ID, c.EventID, c.Name,
		); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadEvent returns a single event or an error wrapping model.ErrNotFound.
func (s *PostgresStore) LoadEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("event", id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// SaveEvent updates the mutable columns of an event. The reserved counter is
// owned by ReserveSlot/ReleaseSlot and is not written here.
func (s *PostgresStore) SaveEvent(ctx context.Context, e *model.Event) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events
		 SET name = $2, description = $3, status = $4, feedback = $5, updated_at = $6
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.Status, e.Feedback, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("event", e.ID)
	}
	return nil
}

// ListEvents returns events ordered by creation time descending. An empty
// status returns all events.
func (s *PostgresStore) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

const registrationColumns = `id, event_id, participant_id, COALESCE(category_id, ''),
	COALESCE(kit_id, ''), status, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	if err := row.Scan(&r.ID, &r.EventID, &r.ParticipantID, &r.CategoryID,
		&r.KitID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadRegistration returns a single registration.
func (s *PostgresStore) LoadRegistration(ctx context.Context, id string) (*model.Registration, error) {
	r, err := scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("registration", id)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return r, nil
}

// SaveRegistration upserts a registration. The partial unique index on
// (event_id, participant_id) for holding statuses backs the one-registration
// rule.
func (s *PostgresStore) SaveRegistration(ctx context.Context, r *model.Registration) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO registrations (id, event_id, participant_id, category_id, kit_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		r.ID, r.EventID, r.ParticipantID, r.CategoryID, r.KitID, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrDuplicateRegistration
		}
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

// FindHoldingRegistration returns the participant's Pending or Confirmed
// registration for the event.
func (s *PostgresStore) FindHoldingRegistration(ctx context.Context, eventID, participantID string) (*model.Registration, error) {
	r, err := scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND participant_id = $2 AND status IN ($3, $4)`,
		eventID, participantID, model.RegistrationPending, model.RegistrationConfirmed,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("registration for participant", participantID)
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return r, nil
}

// ListRegistrations returns all registrations for a given event.
func (s *PostgresStore) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

// LoadPayment returns the payment row of a registration.
func (s *PostgresStore) LoadPayment(ctx context.Context, registrationID string) (*model.Payment, error) {
	var p model.Payment
	err := s.db.QueryRow(ctx,
		`SELECT id, registration_id, amount, method, status, attempts, processed_at
		 FROM payments WHERE registration_id = $1`,
		registrationID,
	).Scan(&p.ID, &p.RegistrationID, &p.Amount, &p.Method, &p.Status, &p.Attempts, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("payment for registration", registrationID)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

// SavePayment upserts on registration_id. A row already marked Paid is never
// overwritten; the statement then affects no rows and
// model.ErrInvalidStateTransition is returned.
func (s *PostgresStore) SavePayment(ctx context.Context, p *model.Payment) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO payments (id, registration_id, amount, method, status, attempts, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (registration_id) DO UPDATE
		 SET amount = EXCLUDED.amount, method = EXCLUDED.method, status = EXCLUDED.status,
		     attempts = EXCLUDED.attempts, processed_at = EXCLUDED.processed_at
		 WHERE payments.status <> $8
		 RETURNING id`,
		p.ID, p.RegistrationID, p.Amount, p.Method, p.Status, p.Attempts, p.ProcessedAt, model.PaymentPaid,
	).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: payment for registration %s is already paid",
				model.ErrInvalidStateTransition, p.RegistrationID)
		}
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

// CancelEventCascade writes the event status and every given registration in
// one transaction. The event row is locked with SELECT ... FOR UPDATE first so
// concurrent reservations on the same event wait for the commit.
func (s *PostgresStore) CancelEventCascade(ctx context.Context, e *model.Event, regs []model.Registration) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, e.ID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("event", e.ID)
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE events SET status = $2, updated_at = $3 WHERE id = $1`,
		e.ID, e.Status, e.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	for _, r := range regs {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx,
			`UPDATE registrations SET status = $3, updated_at = $4 WHERE id = $1 AND event_id = $2`,
			r.ID, e.ID, r.Status, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update registration: %w", err)
		}
		if tag.RowsAffected() == 0 {
			err = notFound("registration", r.ID)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveNotification inserts a notification record.
func (s *PostgresStore) SaveNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO notifications (id, event_id, kind, feedback, dispatched, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.EventID, n.Kind, n.Feedback, n.Dispatched, n.Error, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the notifications recorded for an event.
func (s *PostgresStore) ListNotifications(ctx context.Context, eventID string) ([]model.Notification, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_id, kind, feedback, dispatched, error, created_at
		 FROM notifications WHERE event_id = $1 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.Kind, &n.Feedback, &n.Dispatched, &n.Error, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReserveSlot increments the reserved counter with a single conditional
// UPDATE. The check and the increment happen under the row lock Postgres takes
// for the UPDATE, so concurrent callers cannot both pass the check.
func (s *PostgresStore) ReserveSlot(ctx context.Context, eventID string) (bool, error) {
	var reserved int
	err := s.db.QueryRow(ctx,
		`UPDATE events SET reserved = reserved + 1
		 WHERE id = $1 AND reserved < capacity
		 RETURNING reserved`,
		eventID,
	).Scan(&reserved)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("increment reserved: %w", err)
	}
	if _, _, err := s.SlotUsage(ctx, eventID); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseSlot decrements the reserved counter.
func (s *PostgresStore) ReleaseSlot(ctx context.Context, eventID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET reserved = reserved - 1 WHERE id = $1 AND reserved > 0`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("decrement reserved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, _, err := s.SlotUsage(ctx, eventID); err != nil {
			return err
		}
		return fmt.Errorf("%w: release on empty counter for event %s", model.ErrInvalidStateTransition, eventID)
	}
	return nil
}

// SlotUsage returns the reserved count and capacity of an event.
func (s *PostgresStore) SlotUsage(ctx context.Context, eventID string) (int, int, error) {
	var reserved, capacity int
	err := s.db.QueryRow(ctx,
		`SELECT reserved, capacity FROM events WHERE id = $1`, eventID,
	).Scan(&reserved, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, notFound("event", eventID)
		}
		return 0, 0, fmt.Errorf("get slot usage: %w", err)
	}
	return reserved, capacity, nil
}

// LoadKit returns a kit by ID.
func (s *PostgresStore) LoadKit(ctx context.Context, kitID string) (*model.Kit, error) {
	var k model.Kit
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, name, surcharge FROM kits WHERE id = $1`, kitID,
	).Scan(&k.ID, &k.EventID, &k.Name, &k.Surcharge)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("kit", kitID)
		}
		return nil, fmt.Errorf("get kit: %w", err)
	}
	return &k, nil
}

// ListKits returns the kits offered by an event, ordered by name.
func (s *PostgresStore) ListKits(ctx context.Context, eventID string) ([]model.Kit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_id, name, surcharge FROM kits WHERE event_id = $1 ORDER BY name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list kits: %w", err)
	}
	defer rows.Close()

	var kits []model.Kit
	for rows.Next() {
		var k model.Kit
		if err := rows.Scan(&k.ID, &k.EventID, &k.Name, &k.Surcharge); err != nil {
			return nil, fmt.Errorf("scan kit: %w", err)
		}
		kits = append(kits, k)
	}
	return kits, rows.Err()
}

// LoadCategory returns a category by ID.
func (s *PostgresStore) LoadCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	var c model.Category
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, name FROM categories WHERE id = $1`, categoryID,
	).Scan(&c.ID, &c.EventID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("category", categoryID)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories returns the categories offered by an event, ordered by name.
func (s *PostgresStore) ListCategories(ctx context.Context, eventID string) ([]model.Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_id, name FROM categories WHERE event_id = $1 ORDER BY name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
