package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RosterEntry is one user row of a bulk roster upload.
type RosterEntry struct {
	Name     string `json:"name"`
	RollNo   string `json:"rollno"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Dept     string `json:"dept"`
	Section  string `json:"section"`
}

// ErrInvalidRoster is returned when an upload cannot be read as a roster.
var ErrInvalidRoster = errors.New("invalid roster format")

// ParseRosterJSON reads a JSON array of roster entries.
func ParseRosterJSON(r io.Reader) ([]RosterEntry, error) {
	var entries []RosterEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	if entries == nil {
		return nil, ErrInvalidRoster
	}
	for i := range entries {
		entries[i].trim()
	}
	return entries, nil
}

// ParseRosterXLSX reads roster entries from the first sheet of a workbook.
// The first row is a header naming the columns; unknown columns are ignored.
func ParseRosterXLSX(r io.Reader) ([]RosterEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidRoster)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	if len(rows) == 0 {
		return []RosterEntry{}, nil
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["rollno"]; !ok {
		return nil, fmt.Errorf("%w: missing rollno column", ErrInvalidRoster)
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	entries := make([]RosterEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		e := RosterEntry{
			Name:     cell(row, "name"),
			RollNo:   cell(row, "rollno"),
			Password: cell(row, "password"),
			Phone:    cell(row, "phone"),
			Role:     cell(row, "role"),
			Dept:     cell(row, "dept"),
			Section:  cell(row, "section"),
		}
		e.trim()
		entries = append(entries, e)
	}
	return entries, nil
}

func (e *RosterEntry) trim() {
	e.Name = strings.TrimSpace(e.Name)
	e.RollNo = strings.TrimSpace(e.RollNo)
	e.Phone = strings.TrimSpace(e.Phone)
	e.Role = strings.TrimSpace(e.Role)
	e.Dept = strings.TrimSpace(e.Dept)
	e.Section = strings.TrimSpace(e.Section)
}
