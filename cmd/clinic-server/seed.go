package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/limamedic/clinic/internal/domain/identity"
)

// defaultDoctors is the roster a fresh install starts with.
var defaultDoctors = []identity.Doctor{
	{ID: 1, Username: "druiz", Name: "Dr. Carlos Ruiz", Specialty: "Cardiología", StartTime: "08:00", EndTime: "13:00", Site: "Miraflores"},
	{ID: 2, Username: "mvega", Name: "Dra. María Vega", Specialty: "Cardiología", StartTime: "14:00", EndTime: "19:00", Site: "San Isidro"},
	{ID: 3, Username: "lquispe", Name: "Dr. Luis Quispe", Specialty: "Pediatría", StartTime: "09:00", EndTime: "17:00", Site: "Miraflores"},
	{ID: 4, Username: "arojas", Name: "Dra. Ana Rojas", Specialty: "Dermatología", StartTime: "10:00", EndTime: "16:00", Site: "Surco"},
	{ID: 5, Username: "jflores", Name: "Dr. Jorge Flores", Specialty: "Medicina General", StartTime: "07:00", EndTime: "15:00", Site: "San Isidro"},
}

// seedDoctors adds each roster doctor whose id is not taken yet and returns
// how many were added. Running it twice adds nothing the second time.
func seedDoctors(ctx context.Context, svc *identity.Service, roster []identity.Doctor) (int, error) {
	added := 0
	for _, d := range roster {
		_, err := svc.GetDoctor(ctx, d.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, identity.ErrDoctorNotFound) {
			return added, fmt.Errorf("look up doctor %d: %w", d.ID, err)
		}
		doc := d
		if err := svc.AddDoctor(ctx, &doc); err != nil {
			return added, fmt.Errorf("add doctor %d: %w", d.ID, err)
		}
		added++
	}
	return added, nil
}
