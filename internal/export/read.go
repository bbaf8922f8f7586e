package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fiscalclm/clm/internal/domain"
)

// ReadCSV parses a file in the WriteCSV layout. Columns are matched by
// header name, so reordered files load too; the BOM is optional and a
// comma-separated file is accepted when its header says so.
//
// Rows that fail to parse are skipped. Their errors are joined into the
// returned error, which is non-nil together with the rows that did parse.
func ReadCSV(r io.Reader) ([]*domain.Contract, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(BOM)); err == nil && string(head) == BOM {
		br.Discard(len(BOM))
	}

	first, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.TrimSpace(first) == "" {
		return nil, errors.New("missing header row")
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(first), br))
	cr.Comma = Delimiter
	if !strings.ContainsRune(first, Delimiter) && strings.ContainsRune(first, ',') {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		out  []*domain.Contract
		errs []error
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError carries its own line number
			errs = append(errs, err)
			continue
		}
		line, _ := cr.FieldPos(0)
		c, err := parseRow(record, cols)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}

// columnIndex maps each Header column to its position in header.
func columnIndex(header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := make([]int, len(Header))
	var missing []string
	for i, name := range Header {
		p, ok := pos[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[i] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(record []string, cols []int) (*domain.Contract, error) {
	field := func(i int) string {
		if cols[i] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[cols[i]])
	}

	c := &domain.Contract{
		ContractNumber:   field(0),
		PartyName:        field(1),
		NCM:              field(3),
		OriginState:      domain.NormalizeState(field(4)),
		DestinationState: domain.NormalizeState(field(5)),
	}

	var err error
	if v := field(2); v != "" {
		if c.Value, err = domain.ParseMoney(v); err != nil {
			return nil, err
		}
	}
	if c.OperationType, err = domain.ParseOperationType(field(6)); err != nil {
		return nil, err
	}
	if c.ExpiryDate, err = domain.ParseDate(field(7)); err != nil {
		return nil, err
	}
	if c.Status, err = domain.ParseStatus(field(8)); err != nil {
		return nil, err
	}
	return c, nil
}
