package leads

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportResult summarizes one CSV import.
type ImportResult struct {
	TotalRows    int           `json:"total_rows"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Errors       []ImportError `json:"errors,omitempty"`
	LeadIDs      []string      `json:"lead_ids,omitempty"`
}

type ImportError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// importColumns maps accepted header names to lead fields.
var importColumns = map[string]string{
	"email":      "email",
	"first_name": "first_name",
	"firstname":  "first_name",
	"last_name":  "last_name",
	"lastname":   "last_name",
	"company":    "company",
	"job_title":  "job_title",
	"title":      "job_title",
	"phone":      "phone",
	"region":     "region",
	"country":    "region",
}

// ImportCSV reads a header row followed by lead rows. Malformed or invalid rows
// are reported and skipped. A read error from the underlying reader (such as a
// size limit) stops the import; rows created before it are kept and returned.
func (s *Service) ImportCSV(ctx context.Context, tenantID string, r io.Reader, source string) (ImportResult, error) {
	if tenantID == "" {
		return ImportResult{}, ErrInvalidArgument
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, fmt.Errorf("%w: empty csv", ErrInvalidArgument)
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return ImportResult{}, fmt.Errorf("%w: read header: %v", ErrInvalidArgument, err)
		}
		return ImportResult{}, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[int]string, len(header))
	for i, h := range header {
		if f, ok := importColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[i] = f
		}
	}
	if len(cols) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no recognized columns", ErrInvalidArgument)
	}

	var res ImportResult
	row := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return res, fmt.Errorf("read row %d: %w", row, err)
			}
			res.TotalRows++
			res.FailureCount++
			res.Errors = append(res.Errors, ImportError{Row: row, Message: err.Error()})
			continue
		}
		res.TotalRows++

		l := Lead{Source: source}
		for i, v := range rec {
			switch cols[i] {
			case "email":
				l.Email = v
			case "first_name":
				l.FirstName = v
			case "last_name":
				l.LastName = v
			case "company":
				l.Company = v
			case "job_title":
				l.JobTitle = v
			case "phone":
				l.Phone = v
			case "region":
				l.Region = v
			}
		}
		if l.Email != "" && ClassifyEmail(l.Email) == EmailStatusInvalid {
			res.FailureCount++
			res.Errors = append(res.Errors, ImportError{Row: row, Field: "email", Value: l.Email, Message: "invalid email format"})
			continue
		}

		created, err := s.Create(ctx, tenantID, l)
		if err != nil {
			res.FailureCount++
			res.Errors = append(res.Errors, ImportError{Row: row, Message: err.Error()})
			continue
		}
		res.SuccessCount++
		res.LeadIDs = append(res.LeadIDs, created.ID)
	}
	return res, nil
}
