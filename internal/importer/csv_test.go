package importer_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/ZacMelendez/passporter/internal/importer"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImporter() (*importer.CSVImporter, *testhelpers.MemoryEntryStore) {
	store := testhelpers.NewMemoryEntryStore()
	return importer.NewCSVImporter(store, testhelpers.NewTestLogger()), store
}

func TestImportCreatesEntries(t *testing.T) {
	ci, store := newImporter()
	file := strings.Join([]string{
		"name,url,username,password",
		"Example,app.example.com/login,alice,hunter2",
		"Other,https://other.example/account,bob,secret",
	}, "\n")

	result, err := ci.Import(strings.NewReader(file))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)

	// urls are normalized to their origin; passwords are never stored
	entry, err := store.GetByURLAndUsername("https://app.example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, entry.Status)

	_, err = store.GetByURLAndUsername("https://other.example", "bob")
	assert.NoError(t, err)
}

func TestImportHeaderCaseInsensitive(t *testing.T) {
	ci, store := newImporter()
	file := "URL,Username\nexample.com,carol\n"

	result, err := ci.Import(strings.NewReader(file))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	_, err = store.GetByURLAndUsername("https://example.com", "carol")
	assert.NoError(t, err)
}

func TestImportMissingRequiredColumns(t *testing.T) {
	ci, _ := newImporter()

	_, err := ci.Import(strings.NewReader("name,password\nExample,hunter2\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "url and username")
}

func TestImportSkipsDuplicates(t *testing.T) {
	ci, _ := newImporter()
	file := strings.Join([]string{
		"url,username",
		"example.com,alice",
		"https://example.com/profile,alice",
	}, "\n")

	result, err := ci.Import(strings.NewReader(file))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestImportSkipsExistingEntries(t *testing.T) {
	ci, store := newImporter()
	_, err := store.Create(&model.Entry{URL: "https://example.com", Username: "alice"})
	require.NoError(t, err)

	result, err := ci.Import(strings.NewReader("url,username\nexample.com,alice\n"))

	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestImportCollectsRowErrors(t *testing.T) {
	ci, _ := newImporter()
	file := strings.Join([]string{
		"url,username,password",
		"example.com,alice,pw",
		"missing-username.example,,pw",
		"other.example,bob,pw",
	}, "\n")

	result, err := ci.Import(strings.NewReader(file))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "line 3")
}

func TestImportToleratesRaggedRows(t *testing.T) {
	ci, _ := newImporter()
	file := strings.Join([]string{
		"url,username,password",
		"example.com,alice", // short row still carries both required fields
		"lonely.example",
	}, "\n")

	result, err := ci.Import(strings.NewReader(file))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "missing url or username")
}

func TestExport(t *testing.T) {
	ci, store := newImporter()
	id, err := store.Create(&model.Entry{URL: "https://example.com", Username: "alice"})
	require.NoError(t, err)
	privacyURL := "https://example.com/privacy"
	require.NoError(t, store.MarkDone(id, &privacyURL, []string{"privacy@example.com", "dpo@example.com"}))
	_, err = store.Create(&model.Entry{URL: "https://other.example", Username: "bob"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ci.Export(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"url", "username", "status", "privacy_url", "scraped_emails", "error_message"}, records[0])
	assert.Equal(t, []string{"https://example.com", "alice", "done",
		"https://example.com/privacy", "privacy@example.com;dpo@example.com", ""}, records[1])
	assert.Equal(t, []string{"https://other.example", "bob", "pending", "", "", ""}, records[2])
}
