package identity

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/limamedic/clinic/internal/platform/tabular"
)

// -- User Repository --

type userRepoTabular struct {
	store tabular.Store
}

func NewUserRepo(store tabular.Store) UserRepository {
	return &userRepoTabular{store: store}
}

func (r *userRepoTabular) Create(ctx context.Context, u *User) error {
	return r.store.AppendRow(ctx, tabular.Patients, userToRow(u))
}

func (r *userRepoTabular) GetByUsername(ctx context.Context, username string) (*User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *userRepoTabular) List(ctx context.Context) ([]*User, error) {
	rows, err := r.store.Read(ctx, tabular.Patients)
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		if row["username"] == "" {
			continue
		}
		users = append(users, userFromRow(row))
	}
	return users, nil
}

func userFromRow(row tabular.Row) *User {
	role, err := ParseRole(row["rol"])
	if err != nil {
		role = Role(row["rol"])
	}
	doc := row["documento"]
	if doc == "" {
		doc = row["dni"]
	}
	return &User{
		Username:     row["username"],
		Name:         row["nombre"],
		Email:        row["email"],
		Phone:        row["telefono"],
		Role:         role,
		PasswordHash: row["password"],
		DocumentID:   doc,
	}
}

func userToRow(u *User) tabular.Row {
	return tabular.Row{
		"username":  u.Username,
		"nombre":    u.Name,
		"email":     u.Email,
		"telefono":  u.Phone,
		"rol":       string(u.Role),
		"password":  u.PasswordHash,
		"documento": u.DocumentID,
		"dni":       u.DocumentID,
	}
}

// -- Doctor Repository --

type doctorRepoTabular struct {
	store tabular.Store
}

func NewDoctorRepo(store tabular.Store) DoctorRepository {
	return &doctorRepoTabular{store: store}
}

func (r *doctorRepoTabular) Create(ctx context.Context, d *Doctor) error {
	return r.store.AppendRow(ctx, tabular.Doctors, doctorToRow(d))
}

func (r *doctorRepoTabular) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	doctors, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *doctorRepoTabular) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.store.Read(ctx, tabular.Doctors)
	if err != nil {
		return nil, err
	}
	doctors := make([]*Doctor, 0, len(rows))
	for _, row := range rows {
		id, ok := ParseID(row["id"])
		if !ok {
			continue
		}
		doctors = append(doctors, &Doctor{
			ID:        id,
			Username:  row["username"],
			Name:      row["nombre"],
			Specialty: row["especialidad"],
			StartTime: row["start_time"],
			EndTime:   row["end_time"],
			Site:      row["sede"],
		})
	}
	return doctors, nil
}

func doctorToRow(d *Doctor) tabular.Row {
	return tabular.Row{
		"id":           strconv.FormatInt(d.ID, 10),
		"username":     d.Username,
		"nombre":       d.Name,
		"especialidad": d.Specialty,
		"start_time":   d.StartTime,
		"end_time":     d.EndTime,
		"sede":         d.Site,
	}
}

// ParseID reads an integer id cell. Spreadsheets edited by hand often store
// whole numbers as "3.0", which is accepted too.
func ParseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}
