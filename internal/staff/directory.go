package staff

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

var validate = validator.New()

// Directory looks staff members up by id or email. Team assignment reads roles
// from here, login reads password hashes.
type Directory interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id uint) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type NewUser struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    string          `json:"phone"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required"`
}

// Register validates in, hashes the password and stores the user.
func Register(ctx context.Context, dir Directory, in NewUser) (models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validate.Struct(in); err != nil {
		return models.User{}, apperr.FromValidator(err)
	}
	if !in.Role.Valid() {
		return models.User{}, apperr.Validation("unknown role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.KindInternal, err, "hash password")
	}
	u := models.User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         in.Role,
		IsActive:     true,
	}
	if err := dir.Create(ctx, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Authenticate returns the active user owning email and password. Any mismatch
// is reported as the same Unauthorized error.
func Authenticate(ctx context.Context, dir Directory, email, password string) (models.User, error) {
	bad := apperr.Unauthorized("wrong email or password")
	u, err := dir.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.User{}, bad
		}
		return models.User{}, err
	}
	if !u.IsActive {
		return models.User{}, bad
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, bad
	}
	return u, nil
}

type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[uint]models.User
	lastID uint
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[uint]models.User)}
}

func (d *MemoryDirectory) Create(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return apperr.Validation("email %q is already registered", u.Email)
		}
	}
	d.lastID++
	u.ID = d.lastID
	d.users[u.ID] = *u
	return nil
}

func (d *MemoryDirectory) Get(_ context.Context, id uint) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (d *MemoryDirectory) GetByEmail(_ context.Context, email string) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("user %q not found", email)
}

func (d *MemoryDirectory) List(_ context.Context, role models.UserRole) ([]models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Create(ctx context.Context, u *models.User) error {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Validation("email %q is already registered", u.Email)
	}
	return d.db.WithContext(ctx).Create(u).Error
}

func (d *GormDirectory) Get(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return u, apperr.NotFound("user %d not found", id)
		}
		return u, err
	}
	return u, nil
}

func (d *GormDirectory) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return u, apperr.NotFound("user %q not found", email)
		}
		return u, err
	}
	return u, nil
}

func (d *GormDirectory) List(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var users []models.User
	q := d.db.WithContext(ctx).Order("id ASC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Find(&users).Error
	return users, err
}
