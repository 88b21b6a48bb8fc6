package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTMLConfig configures report.html.
type HTMLConfig struct {
	OutputPath  string // Defaults to <reportDir>/report.html
	EmbedAssets bool   // Inline screenshots as data URIs
	Title       string // Defaults to "Test Report"
}

// GenerateHTML renders report.html from the JSON files in reportDir.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, details, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	if cfg.Title == "" {
		cfg.Title = "Test Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, buildHTMLData(reportDir, index, details, cfg)); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	tmp := cfg.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return os.Rename(tmp, cfg.OutputPath)
}

type htmlData struct {
	Title       string
	GeneratedAt string
	Index       *Index
	Duration    string
	PassRate    float64
	Scenarios   []htmlScenario
}

type htmlScenario struct {
	Entry    ScenarioEntry
	Detail   ScenarioDetail
	Duration string
	Steps    []htmlStep
}

type htmlStep struct {
	Step
	Duration string
	Images   []htmlImage
	Files    []Attachment
}

type htmlImage struct {
	Name string
	Src  template.URL
}

func buildHTMLData(reportDir string, index *Index, details []ScenarioDetail, cfg HTMLConfig) htmlData {
	data := htmlData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Index:       index,
	}
	if index.EndTime != nil {
		ms := index.EndTime.Sub(index.StartTime).Milliseconds()
		data.Duration = formatDuration(&ms)
	}
	if index.Summary.Total > 0 {
		data.PassRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
	}

	for i, entry := range index.Scenarios {
		sc := htmlScenario{Entry: entry, Detail: details[i], Duration: formatDuration(entry.Duration)}
		for _, s := range details[i].Steps {
			hs := htmlStep{Step: s, Duration: formatDuration(s.Duration)}
			for _, a := range s.Attachments {
				if a.ContentType != "image/png" {
					hs.Files = append(hs.Files, a)
					continue
				}
				src := a.Path
				if cfg.EmbedAssets {
					src = loadAsDataURI(filepath.Join(reportDir, filepath.FromSlash(a.Path)))
				}
				hs.Images = append(hs.Images, htmlImage{Name: a.Name, Src: template.URL(src)})
			}
			sc.Steps = append(sc.Steps, hs)
		}
		data.Scenarios = append(data.Scenarios, sc)
	}
	return data
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", *ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsDataURI(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"join":  strings.Join,
}).Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
:root { --passed: #22c55e; --failed: #ef4444; --skipped: #eab308; --undefined: #a855f7; --running: #06b6d4; --pending: #6b7280; --border: #e5e7eb; }
* { box-sizing: border-box; }
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; color: #111; line-height: 1.5; }
header { background: #f9fafb; border-bottom: 1px solid var(--border); padding: 16px 24px; }
h1 { font-size: 18px; margin: 0 0 8px; }
.meta { color: #4b5563; font-size: 13px; }
.summary { display: flex; gap: 16px; margin-top: 12px; }
.summary div { padding: 6px 12px; border-radius: 6px; background: #fff; border: 1px solid var(--border); font-size: 13px; }
main { padding: 16px 24px; }
details.scenario { border: 1px solid var(--border); border-left-width: 4px; border-radius: 6px; margin-bottom: 8px; }
details.scenario > summary { padding: 8px 12px; cursor: pointer; display: flex; gap: 12px; align-items: baseline; }
.name { font-weight: 600; }
.loc, .dur { color: #6b7280; font-size: 12px; }
.passed { border-left-color: var(--passed); } .failed { border-left-color: var(--failed); }
.skipped { border-left-color: var(--skipped); } .undefined { border-left-color: var(--undefined); }
.running { border-left-color: var(--running); } .pending { border-left-color: var(--pending); }
.badge { font-size: 11px; text-transform: uppercase; padding: 1px 6px; border-radius: 4px; color: #fff; }
.badge.passed { background: var(--passed); } .badge.failed { background: var(--failed); }
.badge.skipped { background: var(--skipped); } .badge.undefined { background: var(--undefined); }
.badge.running { background: var(--running); } .badge.pending { background: var(--pending); }
ol.steps { margin: 0; padding: 0 12px 12px 36px; }
ol.steps li { padding: 4px 0; border-bottom: 1px dashed var(--border); }
.kw { font-weight: 600; color: #2563eb; }
.error { background: #fef2f2; color: #991b1b; padding: 6px 8px; border-radius: 4px; white-space: pre-wrap; font-size: 13px; margin-top: 4px; }
table.data { border-collapse: collapse; margin: 4px 0; font-size: 12px; }
table.data td { border: 1px solid var(--border); padding: 2px 6px; }
img.shot { max-width: 320px; border: 1px solid var(--border); margin: 4px 4px 0 0; }
.attempts { font-size: 12px; color: #6b7280; padding: 0 12px 8px; }
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <div class="meta">
    Run {{.Index.RunID}} &middot; environment <b>{{.Index.Environment.Name}}</b>
    {{with .Index.Environment.BaseURL}}&middot; {{.}}{{end}}
    &middot; {{.Index.Environment.Target}}{{with .Index.Environment.Browser}} ({{.}}){{end}}
    &middot; <span class="badge {{.Index.Status}}">{{.Index.Status}}</span>
    {{with .Duration}}&middot; {{.}}{{end}} &middot; generated {{.GeneratedAt}}
  </div>
  <div class="summary">
    <div>Total <b>{{.Index.Summary.Total}}</b></div>
    <div>Passed <b>{{.Index.Summary.Passed}}</b></div>
    <div>Failed <b>{{.Index.Summary.Failed}}</b></div>
    <div>Skipped <b>{{.Index.Summary.Skipped}}</b></div>
    <div>Undefined <b>{{.Index.Summary.Undefined}}</b></div>
    <div>Pass rate <b>{{printf "%.1f" .PassRate}}%</b></div>
  </div>
</header>
<main>
{{range .Scenarios}}
<details class="scenario {{.Entry.Status}}"{{if eq (print .Entry.Status) "failed"}} open{{end}}>
  <summary>
    <span class="badge {{.Entry.Status}}">{{.Entry.Status}}</span>
    <span class="name">{{.Entry.Feature}}: {{.Entry.Name}}</span>
    <span class="loc">{{.Entry.SourceFile}}:{{.Entry.Line}}{{with .Entry.Tags}} {{join . " "}}{{end}}</span>
    <span class="dur">{{.Duration}}</span>
  </summary>
  {{if gt .Entry.Attempts 1}}<div class="attempts">Attempt {{.Entry.Attempts}}{{range .Entry.AttemptHistory}} &middot; #{{.Attempt}} {{.Status}}{{end}}</div>{{end}}
  <ol class="steps">
  {{range .Steps}}
    <li class="{{.Status}}">
      <span class="badge {{.Status}}">{{.Status}}</span>
      <span class="kw">{{.Keyword}}</span> {{.Text}} <span class="dur">{{.Duration}}</span>
      {{with .DataTable}}<table class="data">{{range .}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</table>{{end}}
      {{with .Element}}<div class="loc">{{.Ref}}{{with .Locator}} &middot; {{.}}{{end}}</div>{{end}}
      {{with .Error}}<div class="error">[{{.Type}}{{with .Code}}/{{.}}{{end}}] {{.Message}}</div>{{end}}
      {{range .Images}}<a href="{{.Src}}" target="_blank"><img class="shot" alt="{{.Name}}" src="{{.Src}}"></a>{{end}}
      {{range .Files}}<div class="loc"><a href="{{.Path}}" target="_blank">{{.Name}}</a></div>{{end}}
    </li>
  {{end}}
  </ol>
</details>
{{end}}
</main>
</body>
</html>
`
