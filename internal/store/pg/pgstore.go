// Package pg implements the auth persistence contract on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ainstein.io/internal/auth"
	"ainstein.io/prm"
)

// Store implements auth.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *Store) Organizations(context.Context) auth.OrganizationStore {
	return &orgStore{db: s.db}
}
func (s *Store) Subscriptions(context.Context) auth.SubscriptionStore {
	return &subscriptionStore{db: s.db}
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, organization_id, partner_id, display_name, email, password_hash, role, active, mfa_enabled, must_change_password`

func (s *userStore) Find(ctx context.Context, id string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanAccount(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`, email)
	return scanAccount(row)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, must_change_password=false, updated_at=now() where id=$1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*auth.Account, error) {
	var (
		account   auth.Account
		orgID     sql.NullString
		partnerID sql.NullString
		role      string
	)
	err := row.Scan(
		&account.ID, &orgID, &partnerID, &account.DisplayName, &account.Email,
		&account.PasswordHash, &role, &account.Active, &account.MFAEnabled,
		&account.MustChangePassword,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	account.OrganizationID = orgID.String
	account.PartnerID = partnerID.String
	parsed, ok := prm.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("user %s has unknown role %q", account.ID, role)
	}
	account.Role = parsed
	return &account, nil
}

// Organization store -------------------------------------------------------

type orgStore struct{ db *sql.DB }

func (s *orgStore) Find(ctx context.Context, id string) (*prm.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, active, subscription_id from organizations where id=$1`, id)
	var org prm.Organization
	err := row.Scan(&org.ID, &org.Name, &org.Active, &org.SubscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Subscription store -------------------------------------------------------

type subscriptionStore struct{ db *sql.DB }

// FindByOrg reads the plan row and overlays live counts for the entity
// resources. Stored usage covers only metered quantities (AI tokens,
// storage); partners, managers and admins are counted from their tables so
// the numbers can never drift.
func (s *subscriptionStore) FindByOrg(ctx context.Context, orgID string) (*prm.SubscriptionPlan, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, plan, status, renews_at, trial_ends_at, features, usage
		   from subscriptions where organization_id=$1`, orgID)

	var (
		plan        prm.SubscriptionPlan
		status      string
		trialEndsAt sql.NullTime
		features    []byte
		usage       []byte
	)
	err := row.Scan(&plan.ID, &plan.OrganizationID, &plan.Plan, &status, &plan.RenewsAt, &trialEndsAt, &features, &usage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plan.Status = prm.SubscriptionStatus(status)
	plan.Features = map[prm.Resource]prm.FeatureLimit{}
	plan.Usage = map[prm.Resource]prm.ResourceUsage{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &plan.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &plan.Usage); err != nil {
			return nil, fmt.Errorf("decode usage: %w", err)
		}
	}
	if plan.Status == prm.StatusTrial && trialEndsAt.Valid {
		remaining := time.Until(trialEndsAt.Time)
		if remaining > 0 {
			plan.TrialDaysLeft = int(math.Ceil(remaining.Hours() / 24))
		}
	}

	if err := s.overlayCounts(ctx, orgID, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *subscriptionStore) overlayCounts(ctx context.Context, orgID string, plan *prm.SubscriptionPlan) error {
	var partners int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from partners where organization_id=$1 and active`, orgID).Scan(&partners)
	if err != nil {
		return fmt.Errorf("count partners: %w", err)
	}
	plan.Usage[prm.ResourcePartners] = prm.ResourceUsage{Current: partners}

	rows, err := s.db.QueryContext(ctx,
		`select role, count(*) from users where organization_id=$1 and active group by role`, orgID)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	var managers, admins int64
	for rows.Next() {
		var (
			role  string
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return err
		}
		switch prm.Role(role) {
		case prm.RolePartnerManager:
			managers = count
		case prm.RoleOrganization:
			admins = count
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	plan.Usage[prm.ResourcePartnerManagers] = prm.ResourceUsage{Current: managers}
	plan.Usage[prm.ResourceAdmins] = prm.ResourceUsage{Current: admins}
	return nil
}

// AddUsage bumps a metered counter inside the usage document.
func (s *subscriptionStore) AddUsage(ctx context.Context, orgID string, resource prm.Resource, delta int64) error {
	path := fmt.Sprintf("{%s,current}", resource)
	res, err := s.db.ExecContext(ctx,
		`update subscriptions
		    set usage = jsonb_set(coalesce(usage, '{}'::jsonb), $2::text[],
		                          to_jsonb(coalesce((usage #>> $2::text[])::bigint, 0) + $3), true)
		  where organization_id=$1`,
		orgID, path, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
