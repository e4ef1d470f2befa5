// Package identity owns user accounts: registration, authentication,
// profile updates, password changes and resource-ownership checks. It is a
// composition over the generic record accessor bound to the users table.
package identity

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/record"
)

// UserTable is the users allow-list shared with admin tooling.
var UserTable = record.Table{
	Name: "users",
	Columns: []string{
		"id", "name", "email", "password", "role", "national_id",
		"department_id", "job_title", "phone", "address", "date_of_birth",
		"created_at", "updated_at",
	},
	DefaultOrder: "created_at",
	GeneratedID:  true,
}

// publicFields is what listings expose; the password hash never leaves the
// service in any shape.
var publicFields = []string{"id", "name", "email", "role", "department_id", "job_title", "created_at"}

// ownedTables are the resources the ownership check may be asked about.
// The table name reaches SQL text, so it must come from this list.
var ownedTables = map[string]struct{}{
	"requests":      {},
	"notifications": {},
}

// Service implements identity operations over the generic record accessor.
type Service struct {
	users *record.Service
	store record.Store
	cost  int
}

// New builds the identity service. cost is the bcrypt work factor.
func New(store record.Store, cost int) *Service {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users: record.New(store, UserTable),
		store: store,
		cost:  cost,
	}
}

// Users exposes the underlying accessor for admin listings.
func (s *Service) Users() *record.Service { return s.users }

// RegisterInput is the caller-supplied registration payload.
type RegisterInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role,omitempty"`
	NationalID  string `json:"national_id,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Register creates a user account. Email is normalized to lower case and
// checked for uniqueness, as is the national identifier when supplied. The
// default role is citizen, the least privileged.
func (s *Service) Register(ctx context.Context, in RegisterInput) (record.Row, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}
	role := in.Role
	if role == "" {
		role = auth.RoleCitizen
	}
	if !auth.ValidRole(role) {
		return nil, apperr.Validation(fmt.Sprintf("unknown role %q", role))
	}

	existing, err := s.users.FindOne(ctx, record.Filters{record.Eq("email", email)})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("user with this email already exists")
	}

	if in.NationalID != "" {
		existing, err := s.users.FindOne(ctx, record.Filters{record.Eq("national_id", in.NationalID)})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Conflict("user with this national ID already exists")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal("registration failed").Wrap(err)
	}

	data := record.Row{
		"name":     name,
		"email":    email,
		"password": string(hash),
		"role":     role,
	}
	if in.NationalID != "" {
		data["national_id"] = in.NationalID
	}
	if in.DateOfBirth != "" {
		data["date_of_birth"] = in.DateOfBirth
	}
	if in.Phone != "" {
		data["phone"] = in.Phone
	}
	if in.Address != "" {
		data["address"] = in.Address
	}

	user, err := s.users.Create(ctx, data)
	if err != nil {
		return nil, err
	}

	obs.Info("new user registered", map[string]any{"email": email, "role": role})
	return sanitize(user), nil
}

// Login authenticates by email and password. An unknown email and a wrong
// password fail identically so the response discloses nothing about which
// check failed.
func (s *Service) Login(ctx context.Context, email, password string) (record.Row, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindOne(ctx, record.Filters{record.Eq("email", email)})
	if err != nil {
		return nil, err
	}
	if user == nil {
		obs.Warn("failed login attempt", map[string]any{"email": email})
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.String("password")), []byte(password)) != nil {
		obs.Warn("failed login attempt", map[string]any{"email": email})
		return nil, apperr.Unauthorized("invalid email or password")
	}

	obs.Info("user logged in", map[string]any{"email": email})
	return sanitize(user), nil
}

// UpdateProfile applies profile changes. Attempts to change role or
// password through this path are silently discarded; those require the
// dedicated privileged operations. Email and national-ID uniqueness is
// re-validated against all other users.
func (s *Service) UpdateProfile(ctx context.Context, userID string, updates record.Row) (record.Row, error) {
	delete(updates, "role")
	delete(updates, "password")

	if email, ok := updates["email"].(string); ok && email != "" {
		email = strings.ToLower(strings.TrimSpace(email))
		other, err := s.users.FindOne(ctx, record.Filters{record.Eq("email", email)})
		if err != nil {
			return nil, err
		}
		if other != nil && other.String("id") != userID {
			return nil, apperr.Conflict("email already in use")
		}
		updates["email"] = email
	}

	if nid, ok := updates["national_id"].(string); ok && nid != "" {
		other, err := s.users.FindOne(ctx, record.Filters{record.Eq("national_id", nid)})
		if err != nil {
			return nil, err
		}
		if other != nil && other.String("id") != userID {
			return nil, apperr.Conflict("national ID already in use")
		}
	}

	user, err := s.users.Update(ctx, userID, updates)
	if err != nil {
		return nil, err
	}
	return sanitize(user), nil
}

// ChangePassword verifies the current password, then re-hashes and persists
// the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.Validation("new password is required")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.String("password")), []byte(currentPassword)) != nil {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return apperr.Internal("password change failed").Wrap(err)
	}
	if _, err := s.users.Update(ctx, userID, record.Row{"password": string(hash)}); err != nil {
		return err
	}

	obs.Info("password changed", map[string]any{"user_id": userID})
	return nil
}

// Get returns a single user without the password hash.
func (s *Service) Get(ctx context.Context, userID string) (record.Row, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sanitize(user), nil
}

// Owns answers whether userID owns the given resource: an existence check
// scoped by id and user_id. Only allow-listed tables may be asked about.
func (s *Service) Owns(ctx context.Context, table, resourceID, userID string) (bool, error) {
	if _, ok := ownedTables[table]; !ok {
		return false, apperr.BadRequest(fmt.Sprintf("ownership check not supported for %q", table))
	}
	query := fmt.Sprintf("select exists (select 1 from %s where id = $1 and user_id = $2)", table)
	rows, err := s.store.Query(ctx, query, resourceID, userID)
	if err != nil {
		return false, apperr.Classify(err, "ownership check failed")
	}
	defer rows.Close()

	var owns bool
	if rows.Next() {
		if err := rows.Scan(&owns); err != nil {
			return false, apperr.Classify(err, "ownership check failed")
		}
	}
	return owns, rows.Err()
}

func sanitize(user record.Row) record.Row {
	delete(user, "password")
	return user
}
