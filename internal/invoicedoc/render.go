// Package invoicedoc renders invoices to a printable HTML artifact and
// stores it under the per-month archive directory.
package invoicedoc

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

// Practitioner is the identity block printed on every invoice.
type Practitioner struct {
	Name    string
	Phone   string
	Email   string
	Address string
	Siret   string
	Ape     string
	Adeli   string
}

// Line is one rendered invoice row: the appointment's type name, its date
// and the billed amount.
type Line struct {
	Description string
	Date        time.Time
	Amount      float64
}

// Document is the full input of a render: invoice, payer, rows, the invoices
// this one supersedes, and the billed period.
type Document struct {
	Invoice      clinic.Invoice
	Patient      clinic.Patient
	Lines        []Line
	Superseded   []string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	DueDate      time.Time
	Practitioner Practitioner
}

func (d Document) Total() float64 {
	var total float64
	for _, l := range d.Lines {
		total += l.Amount
	}
	return total
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FormatDateFR renders a date the way it appears on the paper invoice,
// e.g. "13 janvier 2024".
func FormatDateFR(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"dateFR": FormatDateFR,
		"euros":  func(v float64) string { return fmt.Sprintf("%.2f €", v) },
	}
	return &HTMLRenderer{
		tmpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceTemplate)),
	}
}

func (r *HTMLRenderer) Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.Invoice.ID, err)
	}
	return buf.Bytes(), nil
}

// Persist writes the artifact under dir, creating directories as needed, and
// returns the absolute path.
func (r *HTMLRenderer) Persist(data []byte, dir, filename string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create invoice dir: %w", err)
	}

	absFile := filepath.Join(absDir, filename)
	if err := os.WriteFile(absFile, data, 0o644); err != nil {
		return "", fmt.Errorf("write invoice artifact: %w", err)
	}
	return absFile, nil
}

// PersistTemp writes a preview artifact to a temporary file, meant to be
// opened for inspection rather than archived.
func (r *HTMLRenderer) PersistTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "facture-preview-*.html")
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("write preview file: %w", err)
	}
	return f.Name(), nil
}

const invoiceTemplate = `<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="UTF-8">
<style>
  @page { size: A4; margin: 40px 50px 130px 50px; }
  body { font-family: Arial, sans-serif; font-size: 10pt; color: #000; line-height: 1.3; }
  .header { display: flex; justify-content: space-between; margin-bottom: 40px; }
  .practitioner-name { font-weight: bold; font-size: 11pt; }
  .facture-title { font-weight: bold; font-size: 12pt; text-transform: uppercase; }
  .annulation-box { border: 1px solid #cc0000; background: #fff0f0; color: #cc0000;
    padding: 5px; margin: 10px 0; font-size: 9pt; }
  .client-section { border: 3px solid #000; padding: 5px; margin-top: 30px; width: 60%; }
  .client-nom { font-weight: bold; font-size: 11pt; }
  table.services { width: 100%; border-collapse: collapse; margin: 20px 0; }
  table.services td { padding: 8px 5px; border-bottom: 1px solid #ccc; font-size: 10pt; }
  .col-prix { text-align: right; }
  .total-row td { border-bottom: none; border-top: 1px solid #000; font-weight: bold; font-size: 11pt; }
  .footer-legal { position: fixed; bottom: -80px; left: 0; right: 0; text-align: center;
    font-size: 8pt; line-height: 1.4; }
</style>
</head>
<body>
  <div class="header">
    <div>
      <div class="practitioner-name">{{.Practitioner.Name}}</div>
      <div>{{.Practitioner.Address}}</div>
      <div>{{.Practitioner.Phone}}</div>
      <div>{{.Practitioner.Email}}</div>
    </div>
    <div>
      <div class="facture-title">Facture {{.Invoice.ID}}</div>
      {{if .Superseded}}
      <div class="annulation-box">
        <strong>{{if eq (len .Superseded) 1}}Annule et remplace la facture :{{else}}Annule et remplace les factures :{{end}}</strong><br>
        {{range $i, $id := .Superseded}}{{if $i}}, {{end}}{{$id}}{{end}}
      </div>
      {{end}}
      <div style="font-style: italic; font-size: 9pt;">A régler avant le {{dateFR .DueDate}}</div>
      <div class="client-section">
        <div>A l'attention de :</div>
        <div class="client-nom">{{.Patient.PayerName}}</div>
        <div>{{.Patient.Address}}</div>
        <div>{{.Patient.City}}</div>
      </div>
    </div>
  </div>

  <div>Émise le {{dateFR .Invoice.IssueDate}} — Patient : <strong>{{.Patient.FullName}}</strong></div>
  <div style="margin: 20px 0 5px 0; font-weight: bold;">Séances correspondant à la période :</div>
  <div>Du {{dateFR .PeriodStart}} au {{dateFR .PeriodEnd}}</div>

  <table class="services">
    <tbody>
      {{range .Lines}}
      <tr>
        <td>{{.Description}}</td>
        <td>le {{dateFR .Date}}</td>
        <td class="col-prix">{{euros .Amount}}</td>
      </tr>
      {{end}}
      <tr class="total-row">
        <td></td>
        <td class="col-prix">Total :</td>
        <td class="col-prix">{{euros .Total}}</td>
      </tr>
    </tbody>
  </table>

  <div class="footer-legal">
    <div>TVA non applicable, article 261 du code général des impôts (CGI).</div>
    <div>Siret : {{.Practitioner.Siret}} &nbsp;&nbsp; APE {{.Practitioner.Ape}} &nbsp;&nbsp; RPPS : {{.Practitioner.Adeli}}</div>
  </div>
</body>
</html>
`
