package identity

import (
	"fmt"
	"strings"
)

// Role is what a user logs in as. Stored values are the English names; the
// Spanish names written by older deployments are still understood.
type Role string

const (
	RolePatient      Role = "patient"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RolePharmacy     Role = "pharmacy"
)

var roleAliases = map[string]Role{
	"patient":      RolePatient,
	"paciente":     RolePatient,
	"doctor":       RoleDoctor,
	"medico":       RoleDoctor,
	"médico":       RoleDoctor,
	"receptionist": RoleReceptionist,
	"secretaria":   RoleReceptionist,
	"pharmacy":     RolePharmacy,
	"farmacia":     RolePharmacy,
}

// ParseRole accepts any known spelling of a role.
func ParseRole(s string) (Role, error) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// DashboardPath is where a user lands after logging in.
func (r Role) DashboardPath() string {
	switch r {
	case RolePatient, RoleDoctor, RoleReceptionist, RolePharmacy:
		return "/dashboard/" + string(r)
	}
	return "/"
}

// User is a row of the patients table. Staff accounts live there too.
type User struct {
	Username     string `json:"username"`
	Name         string `json:"nombre"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"telefono,omitempty"`
	Role         Role   `json:"rol"`
	PasswordHash string `json:"-"`
	DocumentID   string `json:"documento,omitempty"`
}

// Doctor is a row of the doctors table. Username links the row to the
// doctor's login account and may be empty.
type Doctor struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"nombre"`
	Specialty string `json:"especialidad"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Site      string `json:"sede,omitempty"`
}
