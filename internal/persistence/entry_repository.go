package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/go-sql-driver/mysql"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrDuplicateEntry = errors.New("entry already exists")
)

const entryColumns = "id, url, username, status, privacy_url, scraped_emails, error_message, created_at, updated_at"

// EntryStorage is the durable record of tracked accounts and their discovery
// progress. Status transitions are explicit methods because the lifecycle
// permits only these writes.
type EntryStorage interface {
	Create(entry *model.Entry) (int64, error)
	GetByID(id int64) (*model.Entry, error)
	GetByURLAndUsername(url, username string) (*model.Entry, error)
	List(statusIn []model.EntryStatus) ([]*model.Entry, error)
	Delete(id int64) error
	MarkInProgress(id int64) error
	MarkDone(id int64, privacyURL *string, emails []string) error
	MarkNoResults(id int64) error
	MarkError(id int64, message string) error
	Progress() (*model.ScrapeProgress, error)
}

type EntryRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewEntryRepository(db *sql.DB, log *slog.Logger) *EntryRepository {
	return &EntryRepository{db: db, log: log}
}

func (er *EntryRepository) Create(entry *model.Entry) (int64, error) {
	status := entry.Status
	if status == "" {
		status = model.StatusPending
	}
	res, err := er.db.Exec("INSERT INTO entries (url, username, status) VALUES (?, ?, ?)",
		entry.URL, entry.Username, string(status))
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrDuplicateEntry
		}
		return 0, fmt.Errorf("failed to create entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new entry id: %w", err)
	}
	er.log.Debug("entry created.", slog.Int64("id", id), slog.String("url", entry.URL))

	return id, nil
}

func (er *EntryRepository) GetByID(id int64) (*model.Entry, error) {
	row := er.db.QueryRow("SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}

	return entry, nil
}

func (er *EntryRepository) GetByURLAndUsername(url, username string) (*model.Entry, error) {
	row := er.db.QueryRow("SELECT "+entryColumns+" FROM entries WHERE url = ? AND username = ?", url, username)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry by url and username: %w", err)
	}

	return entry, nil
}

// List returns entries ordered by creation time ascending, optionally
// filtered to the given statuses.
func (er *EntryRepository) List(statusIn []model.EntryStatus) ([]*model.Entry, error) {
	query := "SELECT " + entryColumns + " FROM entries"
	args := make([]any, 0, len(statusIn))
	if len(statusIn) > 0 {
		placeholders := make([]string, len(statusIn))
		for i, status := range statusIn {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC"

	rows, err := er.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

func (er *EntryRepository) Delete(id int64) error {
	res, err := er.db.Exec("DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}

	return nil
}

// MarkInProgress also clears the error message left by a previous attempt.
func (er *EntryRepository) MarkInProgress(id int64) error {
	_, err := er.db.Exec("UPDATE entries SET status = ?, error_message = NULL WHERE id = ?",
		string(model.StatusInProgress), id)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d in progress: %w", id, err)
	}

	return nil
}

func (er *EntryRepository) MarkDone(id int64, privacyURL *string, emails []string) error {
	encoded, err := jsoniter.MarshalToString(emails)
	if err != nil {
		return fmt.Errorf("failed to encode scraped emails: %w", err)
	}
	_, err = er.db.Exec("UPDATE entries SET status = ?, privacy_url = ?, scraped_emails = ? WHERE id = ?",
		string(model.StatusDone), privacyURL, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d done: %w", id, err)
	}

	return nil
}

func (er *EntryRepository) MarkNoResults(id int64) error {
	_, err := er.db.Exec("UPDATE entries SET status = ? WHERE id = ?", string(model.StatusNoResults), id)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d no results: %w", id, err)
	}

	return nil
}

func (er *EntryRepository) MarkError(id int64, message string) error {
	_, err := er.db.Exec("UPDATE entries SET status = ?, error_message = ? WHERE id = ?",
		string(model.StatusError), message, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d errored: %w", id, err)
	}

	return nil
}

// Progress derives per-status counts; nothing aggregate is ever stored.
func (er *EntryRepository) Progress() (*model.ScrapeProgress, error) {
	rows, err := er.db.Query("SELECT status, COUNT(*) FROM entries GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	progress := &model.ScrapeProgress{}
	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch model.EntryStatus(status) {
		case model.StatusPending:
			progress.Pending = count
		case model.StatusInProgress:
			progress.InProgress = count
		case model.StatusDone:
			progress.Done = count
		case model.StatusNoResults:
			progress.NoResults = count
		case model.StatusError:
			progress.Error = count
		}
		progress.Total += count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return progress, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var (
		entry      model.Entry
		privacyURL sql.NullString
		emails     sql.NullString
		errMessage sql.NullString
	)
	err := row.Scan(&entry.ID, &entry.URL, &entry.Username, &entry.Status,
		&privacyURL, &emails, &errMessage, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if privacyURL.Valid {
		entry.PrivacyURL = &privacyURL.String
	}
	if errMessage.Valid {
		entry.ErrorMessage = &errMessage.String
	}
	if emails.Valid && emails.String != "" {
		if err = jsoniter.UnmarshalFromString(emails.String, &entry.ScrapedEmails); err != nil {
			return nil, fmt.Errorf("failed to decode scraped emails: %w", err)
		}
	}

	return &entry, nil
}
