package invoicedoc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

func testDocument() Document {
	return Document{
		Invoice: clinic.Invoice{
			ID:        "FAC-2025-01-003",
			IssueDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			Status:    clinic.InvoiceUnpaid,
		},
		Patient: clinic.Patient{
			ID:          uuid.New(),
			FirstName:   "Lou",
			LastName:    "Moreau",
			BillingName: "M. et Mme Moreau",
			Address:     "12 rue des Lilas",
			City:        "69003 Lyon",
		},
		Lines: []Line{
			{Description: "Séance individuelle", Date: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC), Amount: 50},
			{Description: "Séance individuelle", Date: time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC), Amount: 50},
		},
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		Practitioner: Practitioner{
			Name:  "A. Bernard",
			Siret: "123 456 789 00012",
		},
	}
}

func TestFormatDateFR(t *testing.T) {
	assert.Equal(t, "7 janvier 2025", FormatDateFR(time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "31 décembre 2024", FormatDateFR(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "", FormatDateFR(time.Time{}))
}

func TestDocumentTotal(t *testing.T) {
	doc := testDocument()
	assert.Equal(t, float64(100), doc.Total())

	doc.Lines = nil
	assert.Equal(t, float64(0), doc.Total())
}

func TestRender(t *testing.T) {
	r := NewHTMLRenderer()

	data, err := r.Render(testDocument())
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "FAC-2025-01-003")
	assert.Contains(t, html, "M. et Mme Moreau", "invoices address the payer, not the patient")
	assert.Contains(t, html, "Lou Moreau")
	assert.Contains(t, html, "100.00 €")
	assert.Contains(t, html, "2 mars 2025")
	assert.NotContains(t, html, "Annule et remplace")
}

func TestRender_SupersededBox(t *testing.T) {
	r := NewHTMLRenderer()

	doc := testDocument()
	doc.Superseded = []string{"FAC-2025-01-001", "FAC-2025-01-002"}

	data, err := r.Render(doc)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "Annule et remplace les factures")
	assert.Contains(t, html, "FAC-2025-01-001")
	assert.Contains(t, html, "FAC-2025-01-002")
}

func TestPersist_CreatesMonthDirectory(t *testing.T) {
	r := NewHTMLRenderer()
	base := t.TempDir()

	path, err := r.Persist([]byte("<html></html>"), filepath.Join(base, "2025-01"), "FAC-2025-01-003.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "2025-01", "FAC-2025-01-003.html"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))
}

func TestPersistTemp(t *testing.T) {
	r := NewHTMLRenderer()

	path, err := r.PersistTemp([]byte("<html></html>"))
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	assert.Contains(t, filepath.Base(path), "facture-preview-")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))
}
