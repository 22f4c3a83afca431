package tabular

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXStore keeps each table in its own spreadsheet under dir. The first row
// of a sheet is the header; cells are matched to columns by header name, so
// files edited by hand keep working as long as the headers are intact.
//
// Writes rewrite the whole file through a temp file and rename. The mutex
// serializes access inside this process only.
type XLSXStore struct {
	dir string
	mu  sync.Mutex
}

func NewXLSXStore(dir string) (*XLSXStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &XLSXStore{dir: dir}, nil
}

func (s *XLSXStore) path(t Table) string {
	name := t.File
	if name == "" {
		name = t.Name + ".xlsx"
	}
	return filepath.Join(s.dir, name)
}

func (s *XLSXStore) Read(_ context.Context, t Table) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readLocked(t)
	return rows, persistErr("read", t, err)
}

func (s *XLSXStore) AppendRow(_ context.Context, t Table, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readLocked(t)
	if err != nil {
		return persistErr("append", t, err)
	}
	rows = append(rows, project(t, row))
	return persistErr("append", t, s.writeLocked(t, rows))
}

func (s *XLSXStore) Overwrite(_ context.Context, t Table, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persistErr("overwrite", t, s.writeLocked(t, rows))
}

// Ping checks that the data directory is still reachable.
func (s *XLSXStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *XLSXStore) readLocked(t Table) ([]Row, error) {
	p := s.path(t)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil, s.writeLocked(t, nil)
	}

	f, err := excelize.OpenFile(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", p, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	header := cells[0]
	rows := make([]Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		if isBlank(line) {
			continue
		}
		r := make(Row, len(t.Columns))
		for _, c := range t.Columns {
			r[c] = ""
		}
		for i, name := range header {
			if name == "" || i >= len(line) {
				continue
			}
			r[name] = line[i]
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (s *XLSXStore) writeLocked(t Table, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, t.Columns); err != nil {
		return err
	}
	for i, r := range rows {
		values := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			values[j] = r[c]
		}
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}

	p := s.path(t)
	tmp := filepath.Join(s.dir, "."+filepath.Base(p)+".tmp.xlsx")
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("save %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(xlsxSheet, cell, &vals)
}

func isBlank(line []string) bool {
	for _, v := range line {
		if v != "" {
			return false
		}
	}
	return true
}
