package main

import (
	"fmt"
	"html/template"
	"os"

	"github.com/kyroslabs/vita-elf-create/internal/imports"
	"github.com/kyroslabs/vita-elf-create/internal/sceimage"
)

// reportTemplate renders one row per resolution, the same information the
// resolver already logs via slog, but laid out for a human skimming
// resolution failures across an entire module at a glance.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>vita-elf-create resolution report</title></head>
<body>
<h1>Resolution report</h1>
<p class="run-id">Run {{.RunID}}</p>
<table class="resolutions">
<thead>
<tr><th>Symbol</th><th>Kind</th><th>Status</th><th>Target</th></tr>
</thead>
<tbody>
{{range .Resolutions}}
<tr class="{{if .Resolved}}resolved{{else}}unresolved{{end}}">
<td>{{.Symbol}}</td>
<td>{{.KindName}}</td>
<td>{{if .Resolved}}resolved{{else}}unresolved{{end}}</td>
<td>{{.TargetDisplay}}</td>
</tr>
{{end}}
</tbody>
</table>
</body>
</html>
`))

// reportRow adapts an imports.Resolution into the handful of strings the
// template actually needs, since templates shouldn't reach into package
// internals to decide display formatting.
type reportRow struct {
	Symbol        string
	Resolved      bool
	KindName      string
	TargetDisplay string
}

type reportData struct {
	RunID       string
	Resolutions []reportRow
}

func writeHTMLReport(path string, img *sceimage.Image, resolutions []imports.Resolution) error {
	data := reportData{RunID: img.RunID.String()}

	for _, res := range resolutions {
		row := reportRow{Symbol: res.Symbol, Resolved: res.Resolved}

		switch res.Kind {
		case imports.KindFunction:
			row.KindName = "function"
		case imports.KindVariable:
			row.KindName = "variable"
		}

		if res.Resolved {
			row.TargetDisplay = fmt.Sprintf("%s::%s::%s", res.Library.Name, res.Module.Name, res.Target)
		} else {
			row.TargetDisplay = "-"
		}

		data.Resolutions = append(data.Resolutions, row)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating report file %q: %w", path, err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}
