package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"

	commondb "github.com/AlibekovAA/user-directory/backend/internal/common/db"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

type Repository interface {
	Create(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) ([]domain.User, error)
}

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PgRepository struct {
	pool Querier
}

func NewPgRepository(pool Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, username, email, first_name, last_name, biography, active, created_at`

func (r *PgRepository) Create(ctx context.Context, user domain.User) error {
	start := time.Now()
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(user.ID),
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Biography,
		user.Active,
		user.CreatedAt,
	)
	if commondb.IsUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	return commondb.HandleExecError(err, "create user", start)
}

func (r *PgRepository) Update(ctx context.Context, user domain.User) error {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE users
		 SET email = $2, first_name = $3, last_name = $4, biography = $5, active = $6
		 WHERE id = $1`,
		string(user.ID),
		user.Email,
		user.FirstName,
		user.LastName,
		user.Biography,
		user.Active,
	)
	if commondb.IsUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	if err := commondb.HandleExecError(err, "update user", start); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	start := time.Now()
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	)

	user, err := scanUser(row)
	if err := commondb.HandleQueryError(err, ErrUserNotFound, "find user by username", start); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *PgRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]domain.User, error) {
	start := time.Now()
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2`,
		username,
		email,
	)
	if err != nil {
		return nil, commondb.HandleExecError(err, "find users by username or email", start)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, commondb.HandleExecError(err, "scan user", start)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, commondb.HandleExecError(err, "iterate users", start)
	}

	commondb.MeasureQueryDuration("find users by username or email", start)
	return users, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		id   string
	)
	err := row.Scan(
		&id,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Biography,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.ID = domain.ID(id)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
