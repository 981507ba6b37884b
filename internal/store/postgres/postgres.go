package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const maxListLimit = 500

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(12)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// EnsureSchema creates missing tables. Statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AppendQuote(ctx context.Context, record domain.QuoteRecord) (*domain.QuoteRecord, error) {
	if strings.TrimSpace(record.Name) == "" && strings.TrimSpace(record.LineUserID) == "" {
		return nil, store.ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = xid.New("quote")
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}
	if record.InquiryType == "" {
		record.InquiryType = domain.InquiryVisit
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_log (
			id, received_at, line_user_id, name, furigana, email, phone, total_price,
			vehicle_name, paint_name, options, inquiry_type,
			preferred_visit1, preferred_visit2, preferred_visit3, inquiry
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		record.ID, record.ReceivedAt, record.LineUserID, record.Name, record.Furigana, record.Email,
		record.Phone, record.TotalPrice, record.VehicleName, record.PaintName, record.Options,
		string(record.InquiryType), record.PreferredVisit1, record.PreferredVisit2, record.PreferredVisit3,
		record.Inquiry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListQuotes(ctx context.Context, limit int) ([]domain.QuoteRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, received_at, line_user_id, name, furigana, email, phone, total_price,
			vehicle_name, paint_name, options, inquiry_type,
			preferred_visit1, preferred_visit2, preferred_visit3, inquiry
		FROM quote_log
		ORDER BY received_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make([]domain.QuoteRecord, 0, 64)
	for rows.Next() {
		var q domain.QuoteRecord
		var inquiryType string
		if err := rows.Scan(
			&q.ID, &q.ReceivedAt, &q.LineUserID, &q.Name, &q.Furigana, &q.Email, &q.Phone, &q.TotalPrice,
			&q.VehicleName, &q.PaintName, &q.Options, &inquiryType,
			&q.PreferredVisit1, &q.PreferredVisit2, &q.PreferredVisit3, &q.Inquiry,
		); err != nil {
			return nil, err
		}
		q.InquiryType = domain.InquiryType(inquiryType)
		q.ReceivedAt = q.ReceivedAt.UTC()
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
