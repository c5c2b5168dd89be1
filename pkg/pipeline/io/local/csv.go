package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

// ReadCompaniesCSV reads companies from a CSV file. The name column ("name" or "company") is
// required; the profile column ("profile_id" or "linkedin_url") is optional. Rows with an empty
// name are skipped.
func ReadCompaniesCSV(r io.Reader) ([]enrich.Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	nameIdx := columnIndex(header, "name", "company")
	if nameIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "name")
	}
	profileIdx := columnIndex(header, "profile_id", "linkedin_url")

	var companies []enrich.Company
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if nameIdx >= len(rec) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), nameIdx+1)
		}
		name := strings.TrimSpace(rec[nameIdx])
		if name == "" {
			continue
		}
		c := enrich.Company{Name: name}
		if profileIdx >= 0 && profileIdx < len(rec) {
			c.ProfileID = strings.TrimSpace(rec[profileIdx])
		}
		companies = append(companies, c)
	}
	return companies, nil
}

// ReadCompaniesFile opens path and reads it with ReadCompaniesCSV.
func ReadCompaniesFile(path string) ([]enrich.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadCompaniesCSV(f)
}

// CreateOutput creates path (truncating it) for writing results. "-" means stdout.
func CreateOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// columnIndex returns the first header position matching any of names, in priority order.
func columnIndex(header []string, names ...string) int {
	for _, name := range names {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}
