package output

import (
	"html"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/law-makers/plancrawl/pkg/models"
)

// writeMarkdown renders each record as a heading and a field table.
func writeMarkdown(w io.Writer, records []models.Record) error {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	mdStr, err := converter.ConvertString(recordsHTML(records))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, strings.TrimSpace(mdStr)+"\n")
	return err
}

func recordsHTML(records []models.Record) string {
	var sb strings.Builder
	for _, r := range records {
		title := r.String(models.KeyUID)
		if a := r.String(models.KeyAuthority); a != "" {
			title = a + " " + title
		}
		sb.WriteString("<h2>" + html.EscapeString(title) + "</h2>\n")
		sb.WriteString("<table><thead><tr><th>Field</th><th>Value</th></tr></thead><tbody>\n")
		for _, k := range header([]models.Record{r}) {
			v := Value(r[k])
			if v == "" {
				continue
			}
			cell := html.EscapeString(v)
			if k == models.KeyURL || k == models.KeySourceURL {
				cell = `<a href="` + html.EscapeString(v) + `">` + cell + `</a>`
			}
			sb.WriteString("<tr><td>" + html.EscapeString(k) + "</td><td>" + cell + "</td></tr>\n")
		}
		sb.WriteString("</tbody></table>\n")
	}
	return sb.String()
}
