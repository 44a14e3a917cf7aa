// Package output renders planning records as JSON, JSON lines, CSV or
// Markdown.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/law-makers/plancrawl/pkg/models"
)

// Format names an output format.
type Format string

const (
	JSON     Format = "json"
	JSONL    Format = "jsonl"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat accepts a format name or its usual file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "jsonl", "ndjson":
		return JSONL, nil
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, jsonl, csv or markdown)", s)
}

// Columns lists the canonical keys in the order tabular formats show them.
var Columns = []string{
	models.KeyUID,
	models.KeyReference,
	models.KeyAltReference,
	models.KeyAuthority,
	models.KeyAddress,
	models.KeyPostcode,
	models.KeyDescription,
	models.KeyApplicationType,
	models.KeyStatus,
	models.KeyDateReceived,
	models.KeyDateValidated,
	models.KeyStartDate,
	models.KeyDecision,
	models.KeyDecisionDate,
	models.KeyEasting,
	models.KeyNorthing,
	models.KeyLatitude,
	models.KeyLongitude,
	models.KeyPlanningPortal,
	models.KeyURL,
	models.KeySourceURL,
	models.KeyDateScraped,
}

// Write renders records to w.
func Write(w io.Writer, format Format, records []models.Record) error {
	switch format {
	case JSON:
		return writeJSON(w, records)
	case JSONL:
		return writeJSONL(w, records)
	case CSV:
		return writeCSV(w, records)
	case Markdown:
		return writeMarkdown(w, records)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// Save writes records to path. An empty format is taken from the file
// extension, defaulting to JSON.
func Save(path string, format Format, records []models.Record) error {
	if format == "" {
		format = JSON
		if f, err := ParseFormat(filepath.Ext(path)); err == nil {
			format = f
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, format, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(w io.Writer, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeJSONL(w io.Writer, records []models.Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// header returns the canonical columns present in records, then any other
// keys in sorted order.
func header(records []models.Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}
	var cols []string
	for _, k := range Columns {
		if seen[k] {
			cols = append(cols, k)
			delete(seen, k)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// Value formats one record value as text.
func Value(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
