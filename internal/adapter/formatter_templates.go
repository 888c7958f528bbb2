package adapter

import (
	"embed"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/kapu/reel-views-bot/internal/service/progress"
	"github.com/kapu/reel-views-bot/internal/service/stats"
)

//go:embed templates/*.tmpl
var formatterTemplateFS embed.FS

var (
	formatterTemplates *template.Template
	formatterOnce      sync.Once
	formatterErr       error
)

var medals = []string{"🥇", "🥈", "🥉"}

func executeFormatterTemplate(name string, data any) (string, error) {
	formatterOnce.Do(func() {
		funcMap := template.FuncMap{
			"add":     func(a, b int) int { return a + b },
			"compact": stats.FormatCompact,
			"commas":  stats.FormatCommas,
			"pct":     progress.FormatPercent,
			"join":    strings.Join,
			"signed": func(n int64) string {
				if n < 0 {
					return "-" + stats.FormatCompact(-n)
				}
				return "+" + stats.FormatCompact(n)
			},
			"signedPct": func(p float64) string {
				if p < 0 {
					return progress.FormatPercent(p)
				}
				return "+" + progress.FormatPercent(p)
			},
			"medal": func(i int) string {
				if i < len(medals) {
					return medals[i]
				}
				return strconv.Itoa(i+1) + "."
			},
		}
		tmpl := template.New("formatter").Funcs(funcMap)
		formatterTemplates, formatterErr = tmpl.ParseFS(formatterTemplateFS, "templates/*.tmpl")
	})

	if formatterErr != nil {
		return "", formatterErr
	}

	var builder strings.Builder
	if err := formatterTemplates.ExecuteTemplate(&builder, name, data); err != nil {
		return "", err
	}

	return strings.TrimRight(builder.String(), "\n"), nil
}
