package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// CSV column positions. The last two columns may be omitted.
const (
	colTransactionNo = iota
	colDate
	colType
	colSymbol
	colQuantity
	colPrice
	colFees
	colBroker
	colAltSymbol
	colCurrency

	minColumns = colBroker + 1
	maxColumns = colCurrency + 1
)

const dateLayout = "2006-01-02"

// Record is one validated CSV row
type Record struct {
	Date          time.Time
	Type          domain.TransactionType
	Symbol        string
	Broker        string
	AltSymbol     string
	Currency      domain.Currency // empty means the ticker's native currency
	Quantity      decimal.Decimal // always non-negative, direction comes from Type
	Price         decimal.Decimal
	Fees          decimal.Decimal
	Row           int
	TransactionNo int64
}

// Aliases returns the CSV spellings this row can be looked up by
func (r Record) Aliases() []string {
	if r.AltSymbol == "" {
		return []string{r.Symbol}
	}
	return []string{r.Symbol, r.AltSymbol}
}

// SearchSymbol is the spelling sent to quote providers: the alternative
// symbol when present, otherwise the primary one
func (r Record) SearchSymbol() string {
	if r.AltSymbol != "" {
		return r.AltSymbol
	}
	return r.Symbol
}

// ReadCSV parses and validates every row. A header row is detected by a
// non-numeric first field and skipped. Every malformed row is reported in
// a single *domain.ImportError; no records are returned in that case.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records []Record
		errs    []error
		lastNo  int64
		first   = true
	)

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			errs = append(errs, &domain.RowError{Row: line, Err: fmt.Errorf("%w: %v", domain.ErrParse, err)})
			first = false
			continue
		}

		// Row numbers are file line numbers
		row, _ := reader.FieldPos(0)

		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		if isBlank(fields) {
			continue
		}

		rec, err := parseRecord(fields)
		if err != nil {
			errs = append(errs, &domain.RowError{Row: row, TransactionNo: rec.TransactionNo, Err: err})
			continue
		}
		rec.Row = row

		if rec.TransactionNo <= lastNo {
			errs = append(errs, &domain.RowError{Row: row, TransactionNo: rec.TransactionNo,
				Err: fmt.Errorf("%w: transaction number %d not greater than previous %d", domain.ErrParse, rec.TransactionNo, lastNo)})
			continue
		}
		lastNo = rec.TransactionNo
		records = append(records, rec)
	}

	if len(errs) > 0 {
		return nil, &domain.ImportError{Errs: errs}
	}
	return records, nil
}

func parseRecord(fields []string) (Record, error) {
	var rec Record

	if len(fields) < minColumns || len(fields) > maxColumns {
		return rec, fmt.Errorf("%w: expected %d to %d columns, found %d", domain.ErrParse, minColumns, maxColumns, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	no, err := strconv.ParseInt(fields[colTransactionNo], 10, 64)
	if err != nil || no <= 0 {
		return rec, fmt.Errorf("%w: invalid transaction number %q", domain.ErrParse, fields[colTransactionNo])
	}
	rec.TransactionNo = no

	rec.Date, err = time.Parse(dateLayout, fields[colDate])
	if err != nil {
		return rec, fmt.Errorf("%w: invalid date %q", domain.ErrParse, fields[colDate])
	}

	rec.Type, err = domain.ParseTransactionType(fields[colType])
	if err != nil {
		return rec, err
	}

	rec.Symbol = strings.ToUpper(fields[colSymbol])
	if rec.Symbol == "" {
		return rec, fmt.Errorf("%w: empty symbol", domain.ErrParse)
	}

	if rec.Quantity, err = parseDecimal("quantity", fields[colQuantity]); err != nil {
		return rec, err
	}
	rec.Quantity = rec.Quantity.Abs()

	if rec.Price, err = parseDecimal("price", fields[colPrice]); err != nil {
		return rec, err
	}
	if rec.Price.IsNegative() {
		return rec, fmt.Errorf("%w: negative price %s", domain.ErrParse, rec.Price)
	}

	if rec.Fees, err = parseDecimal("fees", fields[colFees]); err != nil {
		return rec, err
	}
	if rec.Fees.IsNegative() {
		return rec, fmt.Errorf("%w: negative fees %s", domain.ErrParse, rec.Fees)
	}

	rec.Broker = fields[colBroker]
	if rec.Broker == "" {
		return rec, fmt.Errorf("%w: empty broker", domain.ErrParse)
	}

	if len(fields) > colAltSymbol {
		rec.AltSymbol = strings.ToUpper(fields[colAltSymbol])
	}
	if len(fields) > colCurrency && fields[colCurrency] != "" {
		if rec.Currency, err = domain.NormalizeCurrency(fields[colCurrency]); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty %s", domain.ErrParse, name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s %q", domain.ErrParse, name, s)
	}
	return d, nil
}

func isHeader(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	return err != nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
