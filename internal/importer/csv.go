// Package importer moves entries in and out of the store as CSV, the
// interchange format of password-manager exports.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ZacMelendez/passporter/internal/discovery"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
)

// ImportResult tallies one import run. Row-level problems land in Errors and
// never abort the rest of the file.
type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

type CSVImporter struct {
	store persistence.EntryStorage
	log   *slog.Logger
}

func NewCSVImporter(store persistence.EntryStorage, log *slog.Logger) *CSVImporter {
	return &CSVImporter{store: store, log: log}
}

// Import reads a password-manager style CSV export. The header row locates
// the url and username columns case-insensitively; every other column
// (password, name, notes) is ignored and never stored. URLs are normalized
// to their origin, and rows whose (url, username) pair already exists are
// skipped as duplicates.
func (ci *CSVImporter) Import(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // exports disagree on column counts

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	urlIdx, usernameIdx := -1, -1
	for i, column := range header {
		switch strings.ToLower(strings.TrimSpace(column)) {
		case "url":
			urlIdx = i
		case "username":
			usernameIdx = i
		}
	}
	if urlIdx < 0 || usernameIdx < 0 {
		return nil, errors.New("csv must have url and username columns")
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		rawURL, username := "", ""
		if urlIdx < len(record) {
			rawURL = strings.TrimSpace(record[urlIdx])
		}
		if usernameIdx < len(record) {
			username = strings.TrimSpace(record[usernameIdx])
		}
		if rawURL == "" || username == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: missing url or username", line))
			continue
		}

		origin := discovery.NormalizeOrigin(discovery.EnsureScheme(rawURL))
		_, err = ci.store.GetByURLAndUsername(origin, username)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, persistence.ErrEntryNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		if _, err = ci.store.Create(&model.Entry{URL: origin, Username: username}); err != nil {
			if errors.Is(err, persistence.ErrDuplicateEntry) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Created++
	}
	ci.log.Info("csv import finished.", slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped), slog.Int("errors", len(result.Errors)))

	return result, nil
}

// Export streams every entry with its discovery results. Emails are joined
// with ";" inside their column.
func (ci *CSVImporter) Export(w io.Writer) error {
	entries, err := ci.store.List(nil)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err = writer.Write([]string{"url", "username", "status", "privacy_url", "scraped_emails", "error_message"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, entry := range entries {
		privacyURL, errMessage := "", ""
		if entry.PrivacyURL != nil {
			privacyURL = *entry.PrivacyURL
		}
		if entry.ErrorMessage != nil {
			errMessage = *entry.ErrorMessage
		}
		record := []string{
			entry.URL,
			entry.Username,
			string(entry.Status),
			privacyURL,
			strings.Join(entry.ScrapedEmails, ";"),
			errMessage,
		}
		if err = writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	writer.Flush()

	return writer.Error()
}
