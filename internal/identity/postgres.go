package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ RegisteredStore  = (*PGRegisteredStore)(nil)
	_ ProvisionalStore = (*PGProvisionalStore)(nil)
)

const pgUniqueViolation = "23505"

// PGRegisteredStore implements RegisteredStore on the users table.
type PGRegisteredStore struct {
	db *sql.DB
}

func NewPGRegisteredStore(db *sql.DB) *PGRegisteredStore {
	return &PGRegisteredStore{db: db}
}

const registeredColumns = `id, email, first_name, last_name, phone_number, password_hash,
	role, provider, provider_id, picture_url, is_enabled, is_locked, is_expired,
	created_at, updated_at, last_login_at`

func (s *PGRegisteredStore) Create(ctx context.Context, u *RegisteredUser) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, first_name, last_name, phone_number, password_hash,
			role, provider, provider_id, picture_url, is_enabled, is_locked, is_expired,
			created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		u.UserID, u.Email, u.FirstName, u.LastName, nullString(u.PhoneNumber),
		nullString(u.PasswordHash), string(u.Role), string(u.Provider),
		nullString(u.ProviderID), nullString(u.PictureURL),
		u.Enabled, u.Locked, u.Expired, u.CreatedAt, u.UpdatedAt,
	)
	return mapPGError(err)
}

func (s *PGRegisteredStore) FindByID(ctx context.Context, id string) (*RegisteredUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+registeredColumns+` from users where id=$1`, id)
	return scanRegistered(row)
}

func (s *PGRegisteredStore) FindByEmail(ctx context.Context, email string) (*RegisteredUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+registeredColumns+` from users where email=$1`, email)
	return scanRegistered(row)
}

func (s *PGRegisteredStore) Update(ctx context.Context, u *RegisteredUser) error {
	res, err := s.db.ExecContext(ctx,
		`update users set first_name=$2, last_name=$3, phone_number=$4, password_hash=$5,
			role=$6, provider=$7, provider_id=$8, picture_url=$9,
			is_enabled=$10, is_locked=$11, is_expired=$12, updated_at=$13
		 where id=$1`,
		u.UserID, u.FirstName, u.LastName, nullString(u.PhoneNumber),
		nullString(u.PasswordHash), string(u.Role), string(u.Provider),
		nullString(u.ProviderID), nullString(u.PictureURL),
		u.Enabled, u.Locked, u.Expired, u.UpdatedAt,
	)
	if err != nil {
		return mapPGError(err)
	}
	return requireRow(res)
}

func (s *PGRegisteredStore) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from users where role=$1`, string(role)).Scan(&count)
	return count, err
}

func (s *PGRegisteredStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2, updated_at=$2 where id=$1`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PGProvisionalStore implements ProvisionalStore on the google_users table.
type PGProvisionalStore struct {
	db *sql.DB
}

func NewPGProvisionalStore(db *sql.DB) *PGProvisionalStore {
	return &PGProvisionalStore{db: db}
}

const provisionalColumns = `id, email, first_name, last_name, provider_id, picture_url,
	is_enabled, is_locked, is_expired, created_at, updated_at, last_login_at`

func (s *PGProvisionalStore) Create(ctx context.Context, u *ProvisionalUser) error {
	_, err := s.db.ExecContext(ctx,
		`insert into google_users(id, email, first_name, last_name, provider_id, picture_url,
			is_enabled, is_locked, is_expired, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.UserID, u.Email, u.FirstName, u.LastName, u.ProviderID, nullString(u.PictureURL),
		u.Enabled, u.Locked, u.Expired, u.CreatedAt, u.UpdatedAt,
	)
	return mapPGError(err)
}

func (s *PGProvisionalStore) FindByEmail(ctx context.Context, email string) (*ProvisionalUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+provisionalColumns+` from google_users where email=$1`, email)
	return scanProvisional(row)
}

func (s *PGProvisionalStore) FindByProviderID(ctx context.Context, providerID string) (*ProvisionalUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+provisionalColumns+` from google_users where provider_id=$1`, providerID)
	return scanProvisional(row)
}

func (s *PGProvisionalStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from google_users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGProvisionalStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update google_users set last_login_at=$2, updated_at=$2 where id=$1`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Helpers ------------------------------------------------------------------

func scanRegistered(row *sql.Row) (*RegisteredUser, error) {
	var (
		u           RegisteredUser
		phone       sql.NullString
		hash        sql.NullString
		providerID  sql.NullString
		picture     sql.NullString
		role        string
		provider    string
		lastLoginAt sql.NullTime
	)
	err := row.Scan(&u.UserID, &u.Email, &u.FirstName, &u.LastName, &phone, &hash,
		&role, &provider, &providerID, &picture, &u.Enabled, &u.Locked, &u.Expired,
		&u.CreatedAt, &u.UpdatedAt, &lastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.PhoneNumber = phone.String
	u.PasswordHash = hash.String
	u.ProviderID = providerID.String
	u.PictureURL = picture.String
	u.Role = Role(role)
	u.Provider = Provider(provider)
	if lastLoginAt.Valid {
		u.LastLoginAt = lastLoginAt.Time
	}
	return &u, nil
}

func scanProvisional(row *sql.Row) (*ProvisionalUser, error) {
	var (
		u           ProvisionalUser
		picture     sql.NullString
		lastLoginAt sql.NullTime
	)
	err := row.Scan(&u.UserID, &u.Email, &u.FirstName, &u.LastName, &u.ProviderID, &picture,
		&u.Enabled, &u.Locked, &u.Expired, &u.CreatedAt, &u.UpdatedAt, &lastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.PictureURL = picture.String
	if lastLoginAt.Valid {
		u.LastLoginAt = lastLoginAt.Time
	}
	return &u, nil
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
