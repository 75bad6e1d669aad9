// Package export renders roadmaps as PDF via headless Chrome.
package export

import (
	"bytes"
	"errors"
	"html/template"
	"time"
)

// Roadmap is the content handed to the exporter.
type Roadmap struct {
	Title       string
	Description string
	Owner       string
	UpdatedAt   time.Time
	Steps       []Step
}

type Step struct {
	Order int
	Title string
	Body  string
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser is not installed.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ExportPDF renders the roadmap to HTML and prints it to PDF.
func (s *Service) ExportPDF(rm Roadmap) (*Result, error) {
	html, err := renderRoadmapHTML(rm)
	if err != nil {
		return nil, err
	}
	return exportPDF(html, rm.Title)
}

var roadmapTemplate = template.Must(template.New("roadmap").Parse(roadmapTemplateHTML))

func renderRoadmapHTML(rm Roadmap) (string, error) {
	var buf bytes.Buffer
	if err := roadmapTemplate.Execute(&buf, rm); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const roadmapTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #2f855a; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .step { padding: 0.75rem 1rem; margin: 0.75rem 0; border-left: 3px solid #2f855a; background: #f7faf8; }
    .step h3 { margin: 0 0 0.25rem 0; }
    .step .order { color: #2f855a; font-weight: bold; margin-right: 0.5rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">{{.Owner}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  {{range .Steps}}
  <div class="step">
    <h3><span class="order">{{.Order}}.</span>{{.Title}}</h3>
    {{if .Body}}<p>{{.Body}}</p>{{end}}
  </div>
  {{end}}
</body>
</html>`
