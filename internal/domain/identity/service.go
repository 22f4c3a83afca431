package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/limamedic/clinic/internal/platform/auth"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrMissingFields      = errors.New("username, name and password are required")
	ErrInvalidHours       = errors.New("doctor start time must be before end time")
)

type Service struct {
	users   UserRepository
	doctors DoctorRepository

	// serializes the uniqueness check and the append in Register and AddDoctor
	mu sync.Mutex
}

func NewService(users UserRepository, doctors DoctorRepository) *Service {
	return &Service{users: users, doctors: doctors}
}

// -- Users --

type RegisterInput struct {
	Username   string `json:"username" form:"username"`
	Name       string `json:"nombre" form:"nombre"`
	Email      string `json:"email" form:"email"`
	Phone      string `json:"telefono" form:"telefono"`
	Role       string `json:"rol" form:"rol"`
	Password   string `json:"password" form:"password"`
	DocumentID string `json:"documento" form:"documento"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Username == "" || in.Name == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	role := RolePatient
	if in.Role != "" {
		r, err := ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	u := &User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Role:         role,
		PasswordHash: hash,
		DocumentID:   strings.TrimSpace(in.DocumentID),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate finds the user whose username or e-mail equals identifier and
// checks the password and the role the user is logging in as. An empty role
// means patient.
func (s *Service) Authenticate(ctx context.Context, identifier, password, role string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	want := RolePatient
	if role != "" {
		r, err := ParseRole(role)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
		want = r
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.Username != identifier && (u.Email == "" || u.Email != identifier) {
			continue
		}
		if !auth.CheckPassword(u.PasswordHash, password) || u.Role != want {
			return nil, ErrInvalidCredentials
		}
		return u, nil
	}
	return nil, ErrInvalidCredentials
}

func (s *Service) GetUser(ctx context.Context, username string) (*User, error) {
	return s.users.GetByUsername(ctx, username)
}

// -- Doctors --

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.List(ctx)
}

// Specialties returns the distinct non-empty specialties, sorted.
func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	return specialtiesOf(doctors), nil
}

func specialtiesOf(doctors []*Doctor) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, d := range doctors {
		if d.Specialty == "" {
			continue
		}
		if _, ok := seen[d.Specialty]; ok {
			continue
		}
		seen[d.Specialty] = struct{}{}
		out = append(out, d.Specialty)
	}
	sort.Strings(out)
	return out
}

func (s *Service) DoctorsBySpecialty(ctx context.Context, specialty string) ([]*Doctor, error) {
	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []*Doctor{}
	for _, d := range doctors {
		if d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

// DoctorByUsername returns the doctor row linked to a login account.
func (s *Service) DoctorByUsername(ctx context.Context, username string) (*Doctor, error) {
	if username == "" {
		return nil, ErrDoctorNotFound
	}
	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range doctors {
		if d.Username == username {
			return d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

// AddDoctor validates working hours and appends the doctor. A zero ID is
// replaced by the next free id.
func (s *Service) AddDoctor(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Specialty) == "" {
		return fmt.Errorf("nombre and especialidad are required")
	}
	start, err := time.Parse("15:04", d.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time %q: %w", d.StartTime, err)
	}
	end, err := time.Parse("15:04", d.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time %q: %w", d.EndTime, err)
	}
	if !start.Before(end) {
		return ErrInvalidHours
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return fmt.Errorf("list doctors: %w", err)
	}
	var maxID int64
	for _, existing := range doctors {
		if d.ID != 0 && existing.ID == d.ID {
			return fmt.Errorf("doctor id %d already exists", d.ID)
		}
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}
	if d.ID == 0 {
		d.ID = maxID + 1
	}
	return s.doctors.Create(ctx, d)
}
