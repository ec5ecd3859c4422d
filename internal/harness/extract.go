package harness

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extractor turns the bytes of a result artifact into the objective value.
type Extractor interface {
	Extract(data []byte) (float64, error)
	Name() string
}

const numberPattern = `[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`

var firstNumberRe = regexp.MustCompile(numberPattern)

// Marker extracts the first numeric literal that follows Marker, optionally
// separated by whitespace, ':' or '='. With an empty marker the first
// numeric literal of the artifact is used.
type Marker struct {
	Marker string
	re     *regexp.Regexp
}

// NewMarker compiles a marker extractor.
func NewMarker(marker string) *Marker {
	m := &Marker{Marker: marker}
	if marker == "" {
		m.re = firstNumberRe
	} else {
		m.re = regexp.MustCompile(regexp.QuoteMeta(marker) + `\s*[:=]?\s*(` + numberPattern + `)`)
	}
	return m
}

func (m *Marker) Name() string { return "marker" }

func (m *Marker) Extract(data []byte) (float64, error) {
	re := m.re
	if re == nil {
		re = NewMarker(m.Marker).re
	}
	match := re.FindSubmatch(data)
	if match == nil {
		if m.Marker == "" {
			return 0, fmt.Errorf("no numeric literal found")
		}
		return 0, fmt.Errorf("no numeric literal found after marker %q", m.Marker)
	}
	lit := match[0]
	if len(match) > 1 {
		lit = match[1]
	}
	return strconv.ParseFloat(string(lit), 64)
}

// TagValue reads the artifact as flat "name = value" bindings (':' or
// whitespace also separate name and value; '#' starts a comment) and returns
// the value bound to Field.
type TagValue struct {
	Field string
}

func (t *TagValue) Name() string { return "tagvalue" }

func (t *TagValue) Extract(data []byte) (float64, error) {
	bindings, err := ParseBindings(data)
	if err != nil {
		return 0, err
	}
	v, ok := bindings[t.Field]
	if !ok {
		return 0, fmt.Errorf("field %q not found", t.Field)
	}
	return v, nil
}

// ParseBindings parses name/value lines into a map. Lines whose value is
// not numeric are skipped; later bindings override earlier ones.
func ParseBindings(data []byte) (map[string]float64, error) {
	out := make(map[string]float64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := splitBinding(line)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		out[name] = f
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bindings: %w", err)
	}
	return out, nil
}

func splitBinding(line string) (name, value string, ok bool) {
	if i := strings.IndexAny(line, "=:"); i > 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
	}
	fields := strings.Fields(line)
	if len(fields) == 2 {
		return fields[0], fields[1], true
	}
	return "", "", false
}

// Table reads delimited text whose first row is a header fixing the schema;
// every data row must have as many fields as the header. The value is taken
// from Column in the first or last data row. A Delimiter of ' ' splits on
// runs of whitespace.
type Table struct {
	Column    string
	Row       string // "first" or "last" (default)
	Delimiter rune
}

func (t *Table) Name() string { return "table" }

func (t *Table) Extract(data []byte) (float64, error) {
	rows, err := t.read(data)
	if err != nil {
		return 0, err
	}
	if len(rows) < 2 {
		return 0, fmt.Errorf("table has no data rows")
	}
	header := rows[0]
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == t.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, fmt.Errorf("column %q not found in header %v", t.Column, header)
	}
	row := rows[len(rows)-1]
	if strings.EqualFold(t.Row, "first") {
		row = rows[1]
	}
	return strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
}

func (t *Table) read(data []byte) ([][]string, error) {
	if t.Delimiter == ' ' {
		var rows [][]string
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) == 0 {
				continue
			}
			if len(rows) > 0 && len(fields) != len(rows[0]) {
				return nil, fmt.Errorf("row %d has %d fields, header has %d", len(rows), len(fields), len(rows[0]))
			}
			rows = append(rows, fields)
		}
		return rows, sc.Err()
	}

	r := csv.NewReader(bytes.NewReader(data))
	if t.Delimiter != 0 {
		r.Comma = t.Delimiter
	}
	r.TrimLeadingSpace = true
	r.Comment = '#'
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read table: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// Structured decodes a YAML or JSON document and returns the number found at
// the dotted Path. Path segments index maps by key and lists by position.
type Structured struct {
	Path string
}

func (s *Structured) Name() string { return "structured" }

func (s *Structured) Extract(data []byte) (float64, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to decode document: %w", err)
	}
	cur := doc
	if s.Path != "" {
		for _, seg := range strings.Split(s.Path, ".") {
			switch node := cur.(type) {
			case map[string]any:
				next, ok := node[seg]
				if !ok {
					return 0, fmt.Errorf("path %q: key %q not found", s.Path, seg)
				}
				cur = next
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(node) {
					return 0, fmt.Errorf("path %q: invalid list index %q", s.Path, seg)
				}
				cur = node[i]
			default:
				return 0, fmt.Errorf("path %q: cannot descend into %T at %q", s.Path, cur, seg)
			}
		}
	}
	switch v := cur.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("path %q: value %v is not numeric", s.Path, cur)
	}
}

// ExtractorSpec is the declarative form of an Extractor.
type ExtractorSpec struct {
	Kind      string
	Marker    string
	Field     string
	Column    string
	Row       string
	Delimiter string
	Path      string
}

// NewExtractor builds the Extractor described by spec.
func NewExtractor(spec ExtractorSpec) (Extractor, error) {
	switch strings.ToLower(spec.Kind) {
	case "", "marker":
		return NewMarker(spec.Marker), nil
	case "tagvalue", "tag_value", "bindings":
		if spec.Field == "" {
			return nil, fmt.Errorf("tagvalue extractor requires a field")
		}
		return &TagValue{Field: spec.Field}, nil
	case "table":
		if spec.Column == "" {
			return nil, fmt.Errorf("table extractor requires a column")
		}
		row := strings.ToLower(spec.Row)
		if row != "" && row != "first" && row != "last" {
			return nil, fmt.Errorf("table extractor row must be first or last, got %q", spec.Row)
		}
		var delim rune
		switch spec.Delimiter {
		case "":
			delim = ','
		case "space", "whitespace", " ":
			delim = ' '
		case "tab", "\t":
			delim = '\t'
		default:
			if len([]rune(spec.Delimiter)) != 1 {
				return nil, fmt.Errorf("table delimiter must be a single character, got %q", spec.Delimiter)
			}
			delim = []rune(spec.Delimiter)[0]
		}
		return &Table{Column: spec.Column, Row: row, Delimiter: delim}, nil
	case "structured", "yaml", "json":
		return &Structured{Path: spec.Path}, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind: %s", spec.Kind)
	}
}
