package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile is the persisted principal. The core only reads it.
type Profile struct {
	ID               string
	Email            string
	Password         string
	Nickname         string
	Avatar           *string
	IdentityType     types.IdentityType
	Role             types.Role
	CanManageJournal bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	SessionID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	FindByID(ctx context.Context, id string) (*Profile, error)
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteSessionRefreshTokens(ctx context.Context, sessionID string) error
	// UpdateRole returns (nil, nil) when the profile does not exist.
	UpdateRole(ctx context.Context, id string, role types.Role, canManageJournal bool) (*Profile, error)
	FindByRole(ctx context.Context, role types.Role) ([]*Profile, error)
	// ListIDs returns every profile id, or only those with one of identities.
	ListIDs(ctx context.Context, identities []types.IdentityType) ([]string, error)
}

type pgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &pgProfileRepository{pool: pool}
}

const profileColumns = `id, email, password, nickname, avatar_url, identity_type, role, can_manage_journal, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(
		&p.ID, &p.Email, &p.Password, &p.Nickname, &p.Avatar,
		&p.IdentityType, &p.Role, &p.CanManageJournal, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProfileRepository) Create(ctx context.Context, profile *Profile) error {
	if profile.IdentityType == "" {
		profile.IdentityType = types.IdentityGuest
	}
	if profile.Role == "" {
		profile.Role = types.RoleNone
	}
	query := `
		INSERT INTO profiles (email, password, nickname, avatar_url, identity_type, role, can_manage_journal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		profile.Email, profile.Password, profile.Nickname, profile.Avatar,
		profile.IdentityType, profile.Role, profile.CanManageJournal,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (r *pgProfileRepository) FindByID(ctx context.Context, id string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1)`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token, user_id, session_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.pool.QueryRow(ctx, query, token.Token, token.UserID, token.SessionID, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
}

func (r *pgProfileRepository) FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	query := `SELECT id, token, user_id, session_id, expires_at, created_at FROM refresh_tokens WHERE token = $1`
	rt := &RefreshToken{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&rt.ID, &rt.Token, &rt.UserID, &rt.SessionID, &rt.ExpiresAt, &rt.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return rt, nil
}

func (r *pgProfileRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	return err
}

func (r *pgProfileRepository) DeleteSessionRefreshTokens(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE session_id = $1`, sessionID)
	return err
}

func (r *pgProfileRepository) UpdateRole(ctx context.Context, id string, role types.Role, canManageJournal bool) (*Profile, error) {
	query := `
		UPDATE profiles SET role = $2, can_manage_journal = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id, role, canManageJournal))
	if err != nil {
		return nil, fmt.Errorf("update profile role: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) FindByRole(ctx context.Context, role types.Role) ([]*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE role = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("list profiles by role: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *pgProfileRepository) ListIDs(ctx context.Context, identities []types.IdentityType) ([]string, error) {
	filter := make([]string, len(identities))
	for i, t := range identities {
		filter[i] = string(t)
	}
	query := `
		SELECT id FROM profiles
		WHERE cardinality($1::text[]) = 0 OR identity_type = ANY($1::text[])
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, filter)
	if err != nil {
		return nil, fmt.Errorf("list profile ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile ids: %w", err)
	}
	return ids, nil
}
