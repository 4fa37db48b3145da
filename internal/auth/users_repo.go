package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fitassess/internal/telemetry/tracing"
	"github.com/2beens/fitassess/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

const userColumns = `id, name, username, email, age, gender, height_cm, weight_kg, sport, national_id, profile_image, joined_at`

type UsersRepo struct {
	db *pgxpool.Pool
}

func NewUsersRepo(db *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{
		db: db,
	}
}

func (r *UsersRepo) Add(ctx context.Context, user User, passwordHash string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO users
				(name, username, email, age, gender, height_cm, weight_kg, sport, national_id, profile_image, password_hash, joined_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id;`,
		user.Name, user.Username, user.Email, user.Age, user.Gender, user.HeightCm, user.WeightKg,
		user.Sport, user.NationalID, user.ProfileImage, passwordHash, user.JoinedAt,
	)

	if err := row.Scan(&user.ID); err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	span.SetAttributes(attribute.Int("user.id", user.ID))
	return &user, nil
}

// GetByUsername returns the user and its password hash.
func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (_ *User, _ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.getByUsername")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	row := r.db.QueryRow(
		ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE username = $1;`,
		username,
	)

	var user User
	var passwordHash string
	if err := row.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.Age, &user.Gender,
		&user.HeightCm, &user.WeightKg, &user.Sport, &user.NationalID, &user.ProfileImage,
		&user.JoinedAt, &passwordHash,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("select user: %w", err)
	}

	return &user, passwordHash, nil
}

func (r *UsersRepo) Get(ctx context.Context, id int) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)

	var user User
	if err := row.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.Age, &user.Gender,
		&user.HeightCm, &user.WeightKg, &user.Sport, &user.NationalID, &user.ProfileImage,
		&user.JoinedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}
