package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const (
	usersTable         = "users"
	organizationsTable = "organizations"
)

var userColumns = []string{"id", "email", "full_name", "role", "organization_id", "is_active", "created_at"}

type UserRepository interface {
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type OrganizationRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Organization, error)
	GetOrCreateByName(ctx context.Context, name string) (*entity.Organization, error)
}

type userRepo struct {
	db  *DB
	log *slog.Logger
}

func NewUserRepository(db *DB, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}
	return &userRepo{db: db, log: log}
}

func (r *userRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	if !u.Role.Valid() {
		return nil, common.Validationf("unknown role %q", u.Role)
	}
	out := *u
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	ib := r.db.builder().Insert(usersTable).
		Columns("email", "full_name", "role", "organization_id", "is_active", "created_at").
		Values(out.Email, out.FullName, string(out.Role), nullInt64(out.OrganizationID), out.IsActive, out.CreatedAt)
	id, err := r.db.insert(ctx, ib)
	if err != nil {
		r.log.Error("user create failed", "email", out.Email, "err", err)
		return nil, common.PersistenceError("create user", err)
	}
	out.ID = id
	r.log.Info("user created", "user_id", id, "role", out.Role)
	return &out, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.get(ctx, entsql.EQ("id", id), id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, entsql.EQ("email", email), email)
}

func (r *userRepo) get(ctx context.Context, p *entsql.Predicate, key any) (*entity.User, error) {
	sel := r.db.builder().Select(userColumns...).From(r.db.table(usersTable)).Where(p)
	var (
		u     entity.User
		role  string
		orgID sql.NullInt64
	)
	err := r.db.queryRow(ctx, sel).Scan(&u.ID, &u.Email, &u.FullName, &role, &orgID, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("user %v not found", key)
	}
	if err != nil {
		return nil, common.PersistenceError("get user", err)
	}
	u.Role = constants.Role(role)
	u.OrganizationID = int64Ptr(orgID)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

type organizationRepo struct {
	db  *DB
	log *slog.Logger
}

func NewOrganizationRepository(db *DB, log *slog.Logger) OrganizationRepository {
	if log == nil {
		log = slog.Default()
	}
	return &organizationRepo{db: db, log: log}
}

func (r *organizationRepo) GetByID(ctx context.Context, id int64) (*entity.Organization, error) {
	return r.get(ctx, entsql.EQ("id", id), id)
}

func (r *organizationRepo) GetOrCreateByName(ctx context.Context, name string) (*entity.Organization, error) {
	org, err := r.get(ctx, entsql.EQ("name", name), name)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	id, err := r.db.insert(ctx, r.db.builder().Insert(organizationsTable).
		Columns("name", "created_at").
		Values(name, now))
	if err != nil {
		r.log.Error("organization create failed", "name", name, "err", err)
		return nil, common.PersistenceError("create organization", err)
	}
	r.log.Info("organization created", "organization_id", id, "name", name)
	return &entity.Organization{ID: id, Name: name, CreatedAt: now}, nil
}

func (r *organizationRepo) get(ctx context.Context, p *entsql.Predicate, key any) (*entity.Organization, error) {
	sel := r.db.builder().Select("id", "name", "created_at").From(r.db.table(organizationsTable)).Where(p)
	var o entity.Organization
	err := r.db.queryRow(ctx, sel).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("organization %v not found", key)
	}
	if err != nil {
		return nil, common.PersistenceError("get organization", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}
