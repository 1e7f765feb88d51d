package sqlxrepos

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// dbUser mirrors the "user" table.
type dbUser struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (repo userRepository) marshal(usr user.User) dbUser {
	u := dbUser{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        pq.StringArray(usr.Roles),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	if !usr.LastLogin.IsZero() {
		u.LastLogin.SetValid(usr.LastLogin.UTC())
	}
	return u
}

func (repo userRepository) unmarshal(u dbUser) user.User {
	return user.User{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		IsActive:     u.IsActive,
		Roles:        []string(u.Roles),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLogin:    u.LastLogin.Time,
	}
}

func (repo userRepository) unmarshalSlice(rows []dbUser) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, repo.unmarshal(u))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND NOT (id = ANY($3))`
		args = append(args, pq.StringArray(ids))
	}
	query += ` LIMIT 1`

	var match struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := repo.db.Get(&match, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if strings.EqualFold(match.Username, username) && username != "" {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(usr user.User) (user.User, error) {
	u := repo.marshal(usr)
	_, err := repo.db.NamedExec(`
		INSERT INTO "user" (id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`, u)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unmarshal(u), nil
}

func (repo userRepository) QueryAllUsers() ([]user.User, error) {
	var rows []dbUser
	if err := repo.db.Select(&rows, `SELECT * FROM "user" ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo userRepository) GetUserByID(id string) (user.User, error) {
	var u dbUser
	if err := repo.db.Get(&u, `SELECT * FROM "user" WHERE id = $1`, id); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by id")
	}
	return repo.unmarshal(u), nil
}

func (repo userRepository) GetUserByUsername(username string) (user.User, error) {
	var u dbUser
	if err := repo.db.Get(&u, `SELECT * FROM "user" WHERE username = $1`, username); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by username")
	}
	return repo.unmarshal(u), nil
}

func (repo userRepository) GetUserByEmail(email string) (user.User, error) {
	var u dbUser
	if err := repo.db.Get(&u, `SELECT * FROM "user" WHERE email = $1`, email); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by email")
	}
	return repo.unmarshal(u), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	var u dbUser
	if err := repo.db.Get(&u, `SELECT * FROM "user" WHERE username = $1 OR email = $1`, username); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by username or email")
	}
	return repo.unmarshal(u), nil
}

func (repo userRepository) FilterUsers(filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	qb := newQueryBuilder(`SELECT * FROM "user"`)

	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		qb.where("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		conds := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			conds = append(conds, qb.placeholder("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ?)", role+"%"))
		}
		qb.and("(" + strings.Join(conds, " OR ") + ")")
	}
	if filter.IsActive != nil {
		qb.where("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		qb.where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		qb.where("created_at <= ?", filter.CreatedTo.UTC())
	}
	qb.orderBy(orderings, "created_at")

	var rows []dbUser
	if err := repo.db.Select(&rows, qb.query(), qb.args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	u := repo.marshal(usr)
	if isActive != nil {
		u.IsActive = *isActive
	}
	res, err := repo.db.NamedExec(`
		UPDATE "user"
		SET name = :name, username = :username, email = :email, is_active = :is_active,
		    roles = :roles, password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id`, u)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(usr.ID)
}

func (repo userRepository) SetUserLastLogin(id string, t time.Time) (user.User, error) {
	res, err := repo.db.Exec(`UPDATE "user" SET last_login = $1 WHERE id = $2`, t.UTC(), id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(id)
}

func (repo userRepository) DeleteUsersByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.Exec(`DELETE FROM "user" WHERE id = ANY($1)`, pq.StringArray(ids))
	return errors.Wrap(err, "deleting users")
}
