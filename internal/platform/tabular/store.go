// Package tabular stores the clinic's three record collections (patients,
// doctors, appointments) as flat tables of string cells. Every backend reads
// a table wholesale and writes either by appending one row or by replacing the
// whole table, which is all the booking flow needs.
package tabular

import (
	"context"
	"errors"
	"fmt"
)

// Row is one record keyed by column name.
type Row map[string]string

// Table names a collection and its default column set.
type Table struct {
	Name    string
	Columns []string
	// File is the spreadsheet file name used by the xlsx backend.
	File string
}

var (
	Patients = Table{
		Name:    "patients",
		File:    "pacientes.xlsx",
		Columns: []string{"username", "nombre", "email", "telefono", "rol", "password", "documento", "dni"},
	}
	Doctors = Table{
		Name:    "doctors",
		File:    "medicos.xlsx",
		Columns: []string{"id", "username", "nombre", "especialidad", "start_time", "end_time", "sede"},
	}
	Appointments = Table{
		Name:    "appointments",
		File:    "citas.xlsx",
		Columns: []string{"id", "usuario", "nombre_paciente", "especialidad", "medico_id", "medico_nombre", "fecha", "hora", "estado", "metodo_pago", "referencia"},
	}
)

// Tables lists every collection the application uses.
func Tables() []Table {
	return []Table{Patients, Doctors, Appointments}
}

// Store is the data-access contract shared by all backends. Read on a table
// that does not exist yet creates it empty.
type Store interface {
	Read(ctx context.Context, t Table) ([]Row, error)
	AppendRow(ctx context.Context, t Table, row Row) error
	Overwrite(ctx context.Context, t Table, rows []Row) error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator is implemented by SQL backends that need a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

var (
	ErrBufferFull  = errors.New("write buffer is full")
	ErrPartialRead = errors.New("table was read from the write buffer only")
)

// PersistenceError reports a failed read or write against a backend.
type PersistenceError struct {
	Op    string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("tabular %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, t Table, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Table: t.Name, Err: err}
}

// IsPersistenceError reports whether err came from a backend failure.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// project copies row onto the table's columns; unknown keys are dropped and
// missing ones become empty strings.
func project(t Table, row Row) Row {
	out := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		out[c] = row[c]
	}
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
