// Package readme renders the dataset card published with a clean dataset.
package readme

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
	"time"
)

// FileName is the card's name inside the clean directory.
const FileName = "README.md"

// Card holds what the dataset card reports.
type Card struct {
	PrettyName  string
	SourceName  string
	SourceURL   string
	DatasetID   string
	License     string
	Records     int
	Images      int
	Dropped     int
	GeneratedAt time.Time
}

var cardTemplate = template.Must(template.New("card").Funcs(template.FuncMap{
	"quote": strconv.Quote,
	"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02") },
}).Parse(`---
license: other
pretty_name: {{quote .PrettyName}}
source: {{quote .SourceURL}}
{{- if .DatasetID}}
dataset_id: {{quote .DatasetID}}
{{- end}}
---
# {{.PrettyName}}

This dataset is a scrape of {{.SourceName}} at <{{.SourceURL}}>, generated on {{date .GeneratedAt}}.

It contains {{.Records}} records referencing {{.Images}} images. Every image listed in
` + "`data.jsonl`" + ` is present in ` + "`images/`" + ` and passed structural validation.
{{- if .Dropped}} {{.Dropped}} records without a valid image were left out.{{end}}

## Layout

- ` + "`data.jsonl`" + `: one JSON record per line.
- ` + "`images/`" + `: image files referenced by the records' ` + "`images[].file_name`" + `.
{{- if .License}}

## License

{{.License}}
{{- end}}
`))

// Render returns the card as Markdown.
func Render(card Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, card); err != nil {
		return nil, fmt.Errorf("render readme: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the card into dir/README.md.
func Write(dir string, card Card) error {
	data, err := Render(card)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}
