package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/quiet-harbor/guardrail/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	AlertNumber   int64
	RuleName      string
	Title         string
	Description   string
	Severity      string
	SeverityColor string
	TestID        string
	ControlID     string
	ResultStatus  string
	ResultMessage string
	TestedAt      string
	FiredAt       string
	SLADeadline   string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d32f2f" // red
	case models.SeverityHigh:
		return "#f57c00" // orange
	case models.SeverityMedium:
		return "#fbc02d" // yellow
	case models.SeverityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// AlertToTemplateData converts an alert to template data.
func AlertToTemplateData(alert *models.Alert) TemplateData {
	data := TemplateData{
		AlertNumber:   alert.AlertNumber,
		RuleName:      alert.RuleName,
		Title:         alert.Title,
		Description:   alert.Description,
		Severity:      string(alert.Severity),
		SeverityColor: severityColor(alert.Severity),
		TestID:        alert.TestID,
		ControlID:     alert.ControlID,
		ResultStatus:  string(alert.Result.Status),
		ResultMessage: alert.Result.Message,
		TestedAt:      alert.Result.TestedAt.Format("2006-01-02 15:04:05 MST"),
		FiredAt:       alert.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	}

	if alert.SLADeadline != nil {
		data.SLADeadline = alert.SLADeadline.Format("2006-01-02 15:04 MST")
	}

	return data
}
