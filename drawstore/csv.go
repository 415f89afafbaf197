package drawstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoHeader      = errors.New("no header row in draws csv")
	ErrFieldCount    = errors.New("draw does not match the number of header columns")
	ErrUnclosedIndex = errors.New("unclosed element index in draws csv header")
)

// LoadCSV reads sampler output where each row is a draw and each column is one
// element of a parameter. Columns named "b[1]", "b[2]" or "b.1", "b.2" are
// grouped into parameter "b" in file order. Matrix elements may be written
// "trend[1,2]" either quoted or unquoted. Lines starting with '#' are skipped.
func LoadCSV(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	// unquoted matrix headers split into more fields than each draw has
	reader.FieldsPerRecord = -1

	raw, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("unable to read draws header, %w", err)
	}
	header, err := joinIndexFields(raw)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(header))
	var order []string
	cols := make(map[string][]int)
	for i, h := range header {
		name := ParameterBase(h)
		names[i] = name
		if _, exists := cols[name]; !exists {
			order = append(order, name)
		}
		cols[name] = append(cols[name], i)
	}

	var rows [][]float64
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read draw %d, %w", len(rows), err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("draw %d has %d fields for %d columns, %w", len(rows), len(rec), len(header), ErrFieldCount)
		}
		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("draw %d column %q, %w", len(rows), header[i], err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoDraws
	}

	params := make(map[string]*mat.Dense, len(order))
	for _, name := range order {
		idx := cols[name]
		m := mat.NewDense(len(rows), len(idx), nil)
		for d, row := range rows {
			for j, c := range idx {
				m.Set(d, j, row[c])
			}
		}
		params[name] = m
	}
	return New(len(rows), params)
}

// joinIndexFields rejoins header fields that were split on the comma inside an
// element index such as trend[1,2]
func joinIndexFields(fields []string) ([]string, error) {
	res := make([]string, 0, len(fields))
	open := false
	for _, f := range fields {
		if open {
			res[len(res)-1] += "," + f
		} else {
			res = append(res, f)
		}
		cur := res[len(res)-1]
		open = strings.Count(cur, "[") > strings.Count(cur, "]")
	}
	if open {
		return nil, fmt.Errorf("%q, %w", res[len(res)-1], ErrUnclosedIndex)
	}
	return res, nil
}

// ParameterBase strips the element index from a sampler column name,
// e.g. "trend[3,1]" and "trend.3.1" both become "trend".
func ParameterBase(column string) string {
	column = strings.TrimSpace(column)
	if i := strings.IndexAny(column, "[."); i > 0 {
		return column[:i]
	}
	return column
}
