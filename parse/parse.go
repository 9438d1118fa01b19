package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

func init() {
	// Lazy quotes required (at least) to survive sloppy use of
	// quotes. Variable field counts let a short row fail on its
	// own rather than taking the table down with it. The BOM
	// reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(bom.NewReader(in))
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1
		return r
	})
}

// Files in load order. Later files reference earlier ones, which
// keeps error messages in a sensible order.
var Tables = []string{
	"agency.txt",
	"stops.txt",
	"routes.txt",
	"calendar.txt",
	"trips.txt",
	"stop_times.txt",
	"shapes.txt",
	"feed_info.txt",
}

var requiredTables = map[string]bool{
	"agency.txt":     true,
	"stops.txt":      true,
	"routes.txt":     true,
	"calendar.txt":   true,
	"trips.txt":      true,
	"stop_times.txt": true,
}

func IsRequired(table string) bool {
	return requiredTables[table]
}

// A problem with a single cell (or, for table level problems, a whole
// file) found while loading.
type FieldError struct {
	Table string
	// 1-based data row, not counting the header. 0 for table level
	// errors.
	Row   int
	Key   string
	Field string
	Kind  model.Kind
	Value string
	Msg   string
}

func (e FieldError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: %s", e.Table, e.Msg)
	}
	return fmt.Sprintf("%s row %d: %s", e.Table, e.Row, e.Msg)
}

// Load errors always block assembly.
func (e FieldError) Finding() model.Finding {
	id := e.Key
	if id == "" && e.Row > 0 {
		id = fmt.Sprintf("row %d", e.Row)
	}
	msg := e.Msg
	if e.Row > 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, e.Msg)
	}
	return model.Finding{
		Severity:   model.SeverityFatal,
		Kind:       e.Kind,
		EntityType: strings.TrimSuffix(e.Table, ".txt"),
		EntityID:   id,
		Field:      e.Field,
		Message:    msg,
	}
}

type LoadResult struct {
	Table    string
	Loaded   int
	Rejected int
	Errors   []FieldError
}

func (r *LoadResult) Findings() []model.Finding {
	findings := make([]model.Finding, 0, len(r.Errors))
	for _, e := range r.Errors {
		findings = append(findings, e.Finding())
	}
	return findings
}

// Parses a single GTFS file into the writer. Malformed rows are
// rejected and reported in the result without aborting the load. The
// returned error is reserved for writer failures other than duplicate
// keys.
func LoadTable(writer storage.FeedWriter, table string, data io.Reader) (*LoadResult, error) {
	switch table {
	case "agency.txt":
		return ParseAgency(writer, data)
	case "stops.txt":
		return ParseStops(writer, data)
	case "routes.txt":
		return ParseRoutes(writer, data)
	case "calendar.txt":
		return ParseCalendar(writer, data)
	case "trips.txt":
		err := writer.BeginTrips()
		if err != nil {
			return nil, fmt.Errorf("beginning trips: %w", err)
		}
		result, err := ParseTrips(writer, data)
		if err != nil {
			return nil, err
		}
		err = writer.EndTrips()
		if err != nil {
			return nil, fmt.Errorf("ending trips: %w", err)
		}
		return result, nil
	case "stop_times.txt":
		err := writer.BeginStopTimes()
		if err != nil {
			return nil, fmt.Errorf("beginning stop_times: %w", err)
		}
		result, err := ParseStopTimes(writer, data)
		if err != nil {
			return nil, err
		}
		err = writer.EndStopTimes()
		if err != nil {
			return nil, fmt.Errorf("ending stop_times: %w", err)
		}
		return result, nil
	case "shapes.txt":
		return ParseShapes(writer, data)
	case "feed_info.txt":
		return ParseFeedInfo(writer, data)
	}
	return nil, fmt.Errorf("unknown table '%s'", table)
}

// Loads all known tables present in files, in dependency order.
// Absent required tables are reported as MissingTable errors.
func LoadFeed(writer storage.FeedWriter, files map[string][]byte) ([]*LoadResult, error) {
	results := []*LoadResult{}
	for _, table := range Tables {
		buf, found := files[table]
		if !found {
			if requiredTables[table] {
				results = append(results, &LoadResult{
					Table: table,
					Errors: []FieldError{{
						Table: table,
						Kind:  model.KindMissingTable,
						Msg:   "required file missing",
					}},
				})
			}
			continue
		}

		result, err := LoadTable(writer, table, strings.NewReader(string(buf)))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", table, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Names of files that are not loaded by LoadFeed, sorted.
func Ignored(files map[string][]byte) []string {
	known := map[string]bool{}
	for _, table := range Tables {
		known[table] = true
	}
	ignored := []string{}
	for name := range files {
		if !known[name] {
			ignored = append(ignored, name)
		}
	}
	sort.Strings(ignored)
	return ignored
}

// Collects the outcome of parsing a single table.
type tableLoader struct {
	result *LoadResult
}

func newTableLoader(table string) *tableLoader {
	return &tableLoader{result: &LoadResult{Table: table}}
}

func (t *tableLoader) malformed(err error) {
	t.result.Errors = append(t.result.Errors, FieldError{
		Table: t.result.Table,
		Kind:  model.KindMalformedTable,
		Msg:   errors.Wrapf(err, "reading %s", t.result.Table).Error(),
	})
}

func (t *tableLoader) row(n int) *rowLoader {
	return &rowLoader{table: t.result.Table, n: n}
}

// Records the row's errors, and writes it if there are none. Writer
// errors other than duplicate keys are returned.
func (t *tableLoader) commit(r *rowLoader, keyField string, write func() error) error {
	if len(r.errs) == 0 {
		err := write()
		if errors.Is(err, storage.ErrDuplicateKey) {
			msg := fmt.Sprintf("duplicate %s '%s'", keyField, r.key)
			if r.key == keyField {
				// Single record tables
				msg = fmt.Sprintf("more than one %s record", keyField)
			}
			r.errs = append(r.errs, FieldError{
				Table: r.table,
				Row:   r.n,
				Key:   r.key,
				Field: keyField,
				Kind:  model.KindDuplicateKey,
				Value: r.key,
				Msg:   msg,
			})
		} else if err != nil {
			return errors.Wrapf(err, "writing %s (row %d)", r.table, r.n)
		}
	}

	if len(r.errs) > 0 {
		t.result.Rejected++
		t.result.Errors = append(t.result.Errors, r.errs...)
		return nil
	}

	t.result.Loaded++
	return nil
}

// Collects errors for a single row.
type rowLoader struct {
	table string
	n     int
	key   string
	errs  []FieldError
}

func (r *rowLoader) fail(kind model.Kind, field, value, format string, args ...interface{}) {
	r.errs = append(r.errs, FieldError{
		Table: r.table,
		Row:   r.n,
		Key:   r.key,
		Field: field,
		Kind:  kind,
		Value: value,
		Msg:   fmt.Sprintf(format, args...),
	})
}

func (r *rowLoader) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		r.fail(model.KindMissingField, field, value, "missing required field '%s'", field)
		return false
	}
	return true
}

// NaN and infinities are rejected along with anything else that
// isn't a finite number.
func (r *rowLoader) float(field, value string, required bool) float64 {
	if value == "" {
		if required {
			r.required(field, value)
		}
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(model.KindTypeMismatch, field, value, "%s '%s' is not a finite number", field, value)
		return 0
	}
	return f
}

func (r *rowLoader) uint(field, value string) uint32 {
	if !r.required(field, value) {
		return 0
	}
	i, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		r.fail(model.KindTypeMismatch, field, value, "%s '%s' is not a non-negative integer", field, value)
		return 0
	}
	return uint32(i)
}

// Optional integer in [min, max], defaulting to 0.
func (r *rowLoader) enum(field, value string, min, max int) int {
	if value == "" {
		return 0
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || i < min || i > max {
		r.fail(model.KindTypeMismatch, field, value, "invalid %s '%s'", field, value)
		return 0
	}
	return i
}

func (r *rowLoader) date(field, value string, required bool) string {
	if value == "" {
		if required {
			r.required(field, value)
		}
		return ""
	}
	if _, err := model.ParseDate(value); err != nil {
		r.fail(model.KindTypeMismatch, field, value, "parsing %s: %s", field, err)
		return ""
	}
	return value
}

func (r *rowLoader) time(field, value string) model.ServiceTime {
	if !r.required(field, value) {
		return 0
	}
	t, err := model.ParseServiceTime(strings.TrimSpace(value))
	if err != nil {
		r.fail(model.KindTypeMismatch, field, value, "parsing %s: %s", field, err)
		return 0
	}
	return t
}
