// Package export renders contract lists for spreadsheet tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/fiscalclm/clm/internal/domain"
)

// BOM makes spreadsheet tools read the file as UTF-8.
const BOM = "\ufeff"

// Delimiter is the column separator expected by pt-BR spreadsheet locales.
const Delimiter = ';'

// Header lists the exported columns in order.
var Header = []string{
	"Número",
	"Contraparte",
	"Valor",
	"NCM",
	"UF Origem",
	"UF Destino",
	"Operação",
	"Vencimento",
	"Status",
}

// WriteCSV writes contracts as a semicolon separated file with a UTF-8 BOM
// and a header row. Fiscal alerts are not exported.
func WriteCSV(w io.Writer, contracts []*domain.Contract) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, c := range contracts {
		if c == nil {
			continue
		}
		if err := cw.Write(Row(c)); err != nil {
			return fmt.Errorf("failed to write contract %s: %w", c.ContractNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Row renders one contract in Header column order.
func Row(c *domain.Contract) []string {
	return []string{
		c.ContractNumber,
		c.PartyName,
		c.Value.String(),
		c.NCM,
		string(c.OriginState),
		string(c.DestinationState),
		c.OperationType.Label(),
		c.ExpiryDate.String(),
		c.Status.Label(),
	}
}

// Filename returns the download name for an export generated on day.
func Filename(prefix string, day domain.Date) string {
	return fmt.Sprintf("%s_%s.csv", prefix, day)
}
