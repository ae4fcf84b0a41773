package user

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bytesec/byte/internal/log"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

const (
	insertUserSQL = `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	selectUserByEmailSQL = `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE email = $1`

	selectUserByIDSQL = `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE id = $1`

	ensureProfileSQL = `
		INSERT INTO user_security_profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`

	selectProfileSQL = `
		SELECT user_id, technical_level, common_threats, platforms_used,
		       past_incidents, explanation_preference, updated_at
		FROM user_security_profiles
		WHERE user_id = $1`

	selectProfileForUpdateSQL = selectProfileSQL + `
		FOR UPDATE`

	updateProfileSQL = `
		UPDATE user_security_profiles
		SET technical_level = $2,
		    common_threats = $3,
		    past_incidents = $4,
		    explanation_preference = $5,
		    updated_at = now()
		WHERE user_id = $1`
)

// Store persists users and security profiles in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a user store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Create registers a new user with an already-hashed password.
func (s *Store) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	u := &User{Email: email, Name: name, PasswordHash: passwordHash}

	err := s.pool.QueryRow(ctx, insertUserSQL, email, name, passwordHash).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// GetByEmail looks a user up for login.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, selectUserByEmailSQL, email))
}

// GetByID looks a user up by primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, selectUserByIDSQL, id))
}

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Profile returns the security profile, or ErrNotFound if none exists yet.
func (s *Store) Profile(ctx context.Context, userID int64) (*SecurityProfile, error) {
	return scanProfile(s.pool.QueryRow(ctx, selectProfileSQL, userID))
}

// ProfileSummary renders the profile for the system prompt. A user without
// a profile gets the empty string so the caller can apply its default.
func (s *Store) ProfileSummary(ctx context.Context, userID int64) (string, error) {
	profile, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return profile.Summary(), nil
}

// ApplyProfileUpdate creates the profile if needed and applies the non-empty
// fields of upd, returning human-readable descriptions of what changed.
// Threats are deduplicated; incidents append as given.
func (s *Store) ApplyProfileUpdate(ctx context.Context, userID int64, upd ProfileUpdate) ([]string, error) {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, ensureProfileSQL, userID); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	profile, err := scanProfile(tx.QueryRow(ctx, selectProfileForUpdateSQL, userID))
	if err != nil {
		return nil, err
	}

	var updates []string
	if upd.TechnicalLevel != "" {
		profile.TechnicalLevel = upd.TechnicalLevel
		updates = append(updates, "Level -> "+upd.TechnicalLevel)
	}
	if upd.NewThreat != "" && !slices.Contains(profile.CommonThreats, upd.NewThreat) {
		profile.CommonThreats = append(profile.CommonThreats, upd.NewThreat)
		updates = append(updates, "Added threat: "+upd.NewThreat)
	}
	if upd.NewIncident != "" {
		profile.PastIncidents = append(profile.PastIncidents, upd.NewIncident)
		updates = append(updates, "Added incident: "+upd.NewIncident)
	}
	if upd.ExplanationPreference != "" {
		profile.ExplanationPreference = upd.ExplanationPreference
		updates = append(updates, "Preference -> "+upd.ExplanationPreference)
	}

	if len(updates) == 0 {
		return nil, nil
	}

	_, err = tx.Exec(ctx, updateProfileSQL, userID,
		profile.TechnicalLevel, profile.CommonThreats, profile.PastIncidents,
		profile.ExplanationPreference)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit profile update: %w", err)
	}

	s.logger.Info("security profile updated", "user_id", userID, "changes", len(updates))
	return updates, nil
}

func scanProfile(row pgx.Row) (*SecurityProfile, error) {
	var p SecurityProfile
	err := row.Scan(&p.UserID, &p.TechnicalLevel, &p.CommonThreats, &p.PlatformsUsed,
		&p.PastIncidents, &p.ExplanationPreference, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}
