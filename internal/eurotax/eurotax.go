// Package eurotax loads Eurotax vehicle reference data from CSV and answers
// lookups, fuzzy searches and price valuations over it.
package eurotax

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sahilm/fuzzy"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

// Record is one Eurotax row. PriceTRY is in kuruş; zero means unknown.
type Record struct {
	Code         string `json:"code"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Version      string `json:"version"`
	YearFrom     int    `json:"year_from"`
	YearTo       int    `json:"year_to"`
	Fuel         string `json:"fuel,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	BodyType     string `json:"body_type,omitempty"`
	EngineCC     int    `json:"engine_cc,omitempty"`
	Horsepower   int    `json:"horsepower,omitempty"`
	PriceTRY     int64  `json:"price_try,omitempty"`
}

// CoversYear reports whether year falls inside the record's production range.
// A zero year matches every record.
func (r *Record) CoversYear(year int) bool {
	if year == 0 {
		return true
	}
	if r.YearFrom != 0 && year < r.YearFrom {
		return false
	}
	return r.YearTo == 0 || year <= r.YearTo
}

// Index is an immutable in-memory view of a Eurotax dump.
type Index struct {
	records []Record
	byCode  map[string]int
	keys    []string
	// Skipped counts rows dropped for missing code, brand or model.
	Skipped int
}

var requiredColumns = []string{"code", "brand", "model"}

// Load parses a header-led CSV using ';' or ',' as delimiter, whichever the
// header line uses more often. Unknown columns are ignored.
func Load(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = strings.TrimPrefix(header, "\ufeff")
	if strings.TrimSpace(header) == "" {
		return nil, errors.New("eurotax csv is empty")
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.Comma = detectDelimiter(header)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[strings.ToLower(strings.TrimSpace(c))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("eurotax csv is missing column %q", c)
		}
	}

	idx := &Index{byCode: make(map[string]int)}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse row: %w", err)
		}
		field := func(name string) string {
			i, ok := pos[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		rec := Record{
			Code:         field("code"),
			Brand:        field("brand"),
			Model:        field("model"),
			Version:      field("version"),
			YearFrom:     atoi(field("year_from")),
			YearTo:       atoi(field("year_to")),
			Fuel:         field("fuel"),
			Transmission: field("transmission"),
			BodyType:     field("body_type"),
			EngineCC:     atoi(field("engine_cc")),
			Horsepower:   atoi(field("horsepower")),
			PriceTRY:     parsePrice(field("price_try")),
		}
		if rec.Code == "" || rec.Brand == "" || rec.Model == "" || !rec.validYears() {
			idx.Skipped++
			continue
		}
		if prev, ok := idx.byCode[rec.Code]; ok {
			idx.records[prev] = rec
			idx.keys[prev] = recordKey(&rec)
			continue
		}
		idx.byCode[rec.Code] = len(idx.records)
		idx.records = append(idx.records, rec)
		idx.keys = append(idx.keys, recordKey(&rec))
	}
	return idx, nil
}

// LoadFile opens path, transparently gunzipping files ending in .gz.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	idx, err := Load(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return idx, nil
}

func (x *Index) Len() int { return len(x.records) }

// Records returns the records in file order.
func (x *Index) Records() []Record {
	out := make([]Record, len(x.records))
	copy(out, x.records)
	return out
}

func (x *Index) ByCode(code string) (Record, bool) {
	i, ok := x.byCode[strings.TrimSpace(code)]
	if !ok {
		return Record{}, false
	}
	return x.records[i], true
}

// Find returns records for brand and model, compared case- and
// diacritic-insensitively, produced in year (0 for any year).
func (x *Index) Find(brand, model string, year int) []Record {
	b, m := textnorm.Fold(brand), textnorm.Fold(model)
	var out []Record
	for i := range x.records {
		rec := &x.records[i]
		if textnorm.Fold(rec.Brand) != b || textnorm.Fold(rec.Model) != m {
			continue
		}
		if !rec.CoversYear(year) {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

type Match struct {
	Record Record `json:"record"`
	Score  int    `json:"score"`
}

// Match ranks records by fuzzy similarity of query to "brand model version".
func (x *Index) Match(query string, limit int) []Match {
	q := textnorm.Fold(query)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}
	found := fuzzy.Find(q, x.keys)
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]Match, 0, len(found))
	for _, f := range found {
		out = append(out, Match{Record: x.records[f.Index], Score: f.Score})
	}
	return out
}

// Brands returns the distinct brand names, sorted by folded name.
func (x *Index) Brands() []string {
	seen := make(map[string]string)
	for i := range x.records {
		k := textnorm.Fold(x.records[i].Brand)
		if _, ok := seen[k]; !ok {
			seen[k] = x.records[i].Brand
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// Valuation summarizes reference prices, all in kuruş.
type Valuation struct {
	Count    int    `json:"count"`
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Avg      int64  `json:"avg"`
	Currency string `json:"currency"`
}

// Valuation aggregates the priced records Find returns. ok is false when no
// matching record has a price.
func (x *Index) Valuation(brand, model string, year int) (Valuation, bool) {
	v := Valuation{Currency: "TRY"}
	var sum int64
	for _, rec := range x.Find(brand, model, year) {
		if rec.PriceTRY <= 0 {
			continue
		}
		if v.Count == 0 || rec.PriceTRY < v.Min {
			v.Min = rec.PriceTRY
		}
		if rec.PriceTRY > v.Max {
			v.Max = rec.PriceTRY
		}
		sum += rec.PriceTRY
		v.Count++
	}
	if v.Count == 0 {
		return Valuation{}, false
	}
	v.Avg = sum / int64(v.Count)
	return v, true
}

func recordKey(r *Record) string {
	return textnorm.Fold(r.Brand + " " + r.Model + " " + r.Version)
}

func detectDelimiter(header string) rune {
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

func (r *Record) validYears() bool {
	if r.YearFrom < models.MinModelYear {
		return false
	}
	return r.YearTo == 0 || r.YearTo >= r.YearFrom
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parsePrice converts a lira amount to kuruş. It accepts "1250000",
// "1250000.50", "1.250.000", "1.250.000,50", "1,250,000" and
// "1,250,000.50".
func parsePrice(s string) int64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "TL"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}
	whole, frac := s, ""
	if sep := decimalSeparator(s); sep != 0 {
		i := strings.LastIndexByte(s, sep)
		whole, frac = s[:i], s[i+1:]
	}
	whole = strings.NewReplacer(".", "", ",", "").Replace(whole)
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0
	}
	var kurus int64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac[:2], 10, 64)
		if err != nil {
			return 0
		}
		kurus = f
	}
	return w*100 + kurus
}

// decimalSeparator picks the fraction separator of a price, or 0 when every
// separator groups thousands. With both '.' and ',' present the last one is
// the decimal mark; a lone separator followed by exactly three digits, or a
// repeated one, groups thousands.
func decimalSeparator(s string) byte {
	dot, comma := strings.LastIndexByte(s, '.'), strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			return '.'
		}
		return ','
	case comma >= 0:
		return decimalOrGrouping(s, ',')
	case dot >= 0:
		return decimalOrGrouping(s, '.')
	default:
		return 0
	}
}

func decimalOrGrouping(s string, sep byte) byte {
	if strings.Count(s, string(sep)) > 1 || len(s)-strings.LastIndexByte(s, sep)-1 == 3 {
		return 0
	}
	return sep
}
