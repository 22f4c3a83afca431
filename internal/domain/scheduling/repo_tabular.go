package scheduling

import (
	"context"
	"sync"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/platform/tabular"
)

type appointmentRepoTabular struct {
	store tabular.Store
	// guards the read-modify-overwrite in UpdateStatus
	mu sync.Mutex
}

func NewAppointmentRepo(store tabular.Store) AppointmentRepository {
	return &appointmentRepoTabular{store: store}
}

func (r *appointmentRepoTabular) Create(ctx context.Context, a *Appointment) error {
	return r.store.AppendRow(ctx, tabular.Appointments, appointmentToRow(a))
}

func (r *appointmentRepoTabular) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *appointmentRepoTabular) List(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.store.Read(ctx, tabular.Appointments)
	if err != nil {
		return nil, err
	}
	out := make([]*Appointment, 0, len(rows))
	for _, row := range rows {
		if a, ok := appointmentFromRow(row); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// UpdateStatus rewrites the estado cell of every row with the id, leaving
// the other cells as they were read.
func (r *appointmentRepoTabular) UpdateStatus(ctx context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Read(ctx, tabular.Appointments)
	if err != nil {
		return err
	}
	found := false
	for _, row := range rows {
		if rowID, ok := identity.ParseID(row["id"]); ok && rowID == id {
			row["estado"] = string(status)
			found = true
		}
	}
	if !found {
		return ErrAppointmentNotFound
	}
	return r.store.Overwrite(ctx, tabular.Appointments, rows)
}
