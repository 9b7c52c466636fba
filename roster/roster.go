// Package roster loads exam registrants from a spreadsheet.
package roster

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pure-golang/exam-mailer/roster")

// DefaultSheet is the sheet read from workbooks.
const DefaultSheet = "Sheet1"

// Column names, matched case-insensitively against the header row.
const (
	ColExamID    = "student_examid"
	ColStudentID = "student_id"
	ColName      = "name"
	ColSurname   = "surname"
	ColSchool    = "school"
	ColRoom      = "room"
	ColTime      = "time"
	ColEmail     = "email"
)

var requiredColumns = []string{ColExamID, ColName, ColSurname, ColSchool, ColRoom, ColTime, ColEmail}

var aliases = map[string]string{
	"exam_id": ColExamID,
}

// Registrant is one roster row.
type Registrant struct {
	Row       int // 1-based position among the data rows
	ExamID    string
	StudentID string
	Name      string
	Surname   string
	School    string
	Room      string
	Time      string
	Email     string
}

// FullName returns "Name Surname".
func (r Registrant) FullName() string {
	return strings.TrimSpace(r.Name + " " + r.Surname)
}

// HasEmail reports whether the row carries an email address.
func (r Registrant) HasEmail() bool {
	return r.Email != ""
}

// ID identifies the registrant in diagnostics: the student id when the
// roster has one, the exam id otherwise.
func (r Registrant) ID() string {
	if r.StudentID != "" {
		return r.StudentID
	}
	return r.ExamID
}

// LoadError is returned for any roster that cannot be turned into registrants.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return "failed to load roster " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the registrants of path in file order. Workbooks (.xlsx, .xlsm)
// are read from sheet, CSV files ignore it.
func Load(ctx context.Context, path, sheet string) ([]Registrant, error) {
	_, span := tracer.Start(ctx, "Roster.Load")
	defer span.End()

	if sheet == "" {
		sheet = DefaultSheet
	}
	span.SetAttributes(attribute.String("roster.path", path), attribute.String("roster.sheet", sheet))

	registrants, err := load(path, sheet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &LoadError{Path: path, Err: err}
	}

	span.SetAttributes(attribute.Int("roster.rows", len(registrants)))
	span.SetStatus(codes.Ok, "")
	return registrants, nil
}

func load(path, sheet string) ([]Registrant, error) {
	var (
		rows [][]string
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path, sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, errors.Errorf("unsupported roster format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	return parse(rows)
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open workbook")
	}
	defer f.Close() // nolint:errcheck

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %q", sheet)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open csv")
	}
	defer f.Close() // nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse csv")
		}
		rows = append(rows, record)
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// parse maps the header row onto columns and reads every data row after it.
func parse(rows [][]string) ([]Registrant, error) {
	if len(rows) == 0 {
		return nil, errors.New("roster is empty")
	}

	index := make(map[string]int)
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if alias, ok := aliases[key]; ok {
			key = alias
		}
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	registrants := make([]Registrant, 0, len(rows)-1)
	for i, row := range rows[1:] {
		r := Registrant{
			Row:       i + 1,
			ExamID:    cell(row, ColExamID),
			StudentID: cell(row, ColStudentID),
			Name:      cell(row, ColName),
			Surname:   cell(row, ColSurname),
			School:    cell(row, ColSchool),
			Room:      cell(row, ColRoom),
			Time:      cell(row, ColTime),
			Email:     cell(row, ColEmail),
		}
		registrants = append(registrants, r)
	}

	return registrants, nil
}
