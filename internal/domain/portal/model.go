// Package portal assembles the read-only views each role lands on after
// login.
package portal

import (
	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
	"github.com/limamedic/clinic/pkg/pagination"
)

// Summary counts appointments per status.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pendientes"`
	Paid     int `json:"pagadas"`
	Attended int `json:"atendidas"`
}

func summarize(appts []*scheduling.Appointment) Summary {
	s := Summary{Total: len(appts)}
	for _, a := range appts {
		switch a.Status {
		case scheduling.StatusPending:
			s.Pending++
		case scheduling.StatusPaid:
			s.Paid++
		case scheduling.StatusAttended:
			s.Attended++
		}
	}
	return s
}

// InventoryItem and Supplier back the pharmacy dashboard. No store feeds them
// yet, so the lists are always empty.
type InventoryItem struct {
	Name  string `json:"nombre"`
	Stock int    `json:"stock"`
}

type Supplier struct {
	Name    string `json:"nombre"`
	Contact string `json:"contacto"`
}

// Page is the JSON body of every dashboard and listing. Fields a role does
// not use are left out.
type Page struct {
	User         auth.Principal       `json:"user"`
	Summary      *Summary             `json:"resumen,omitempty"`
	Appointments *pagination.Response `json:"citas,omitempty"`
	Doctor       *identity.Doctor     `json:"medico,omitempty"`
	Doctors      []*identity.Doctor   `json:"medicos,omitempty"`
	Flashes      []session.Flash      `json:"flashes,omitempty"`
}

type PharmacyPage struct {
	User      auth.Principal  `json:"user"`
	Inventory []InventoryItem `json:"inventario"`
	Suppliers []Supplier      `json:"proveedores"`
	Flashes   []session.Flash `json:"flashes,omitempty"`
}
