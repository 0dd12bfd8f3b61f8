package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/alpinisme/formation-sync/internal/course"
)

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"formatDates": formatDates,
}).Parse(`<html>
<body>
<p>Bonjour,</p>
<p>De nouvelles formations correspondant à vos disciplines sont ouvertes aux inscriptions :</p>
{{range .Sections}}<h3>{{.Discipline}} ({{len .Courses}})</h3>
<ul>
{{range .Courses}}<li><strong>{{.Title}}</strong> — {{.Location}}{{if .Dates}} — {{formatDates .Dates}}{{end}} — {{if .Price}}{{.Price}} €{{else}}gratuit{{end}}</li>
{{end}}</ul>
{{end}}<p>Vous recevez ce message car vous êtes abonné aux alertes formations.</p>
</body>
</html>`))

func formatDates(dates []time.Time) string {
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		parts = append(parts, d.Format("02/01/2006"))
	}
	return strings.Join(parts, ", ")
}

// renderDigest produces the HTML body for one user's digest, grouped by
// discipline with a count in each group header.
func renderDigest(d course.Digest) (string, error) {
	var b strings.Builder
	if err := digestTemplate.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return b.String(), nil
}
