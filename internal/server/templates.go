package server

import (
	"fmt"
	"html/template"

	"spanscope/internal/viewmodel"
	"spanscope/internal/visualize"
)

var templateFuncs = template.FuncMap{
	"duration": visualize.FormatDuration,
	"shortID":  visualize.ShortID,
	"barStyle": func(row viewmodel.DetailRow) template.CSS {
		return template.CSS(fmt.Sprintf("left:%.4f%%;width:%.4f%%;background:%s", row.Left*100, row.Width*100, row.Color))
	},
	"indent": func(depth int) template.CSS {
		return template.CSS(fmt.Sprintf("padding-left:%dpx", 4+depth*14))
	},
	"swatch": func(c visualize.Color) template.CSS {
		return template.CSS("background:" + string(c))
	},
}

var (
	listPage   = template.Must(template.New("list").Funcs(templateFuncs).Parse(tmplBase + tmplList))
	detailPage = template.Must(template.New("detail").Funcs(templateFuncs).Parse(tmplBase + tmplDetail))
)

const tmplBase = `
{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
{{if .RefreshSeconds}}<meta http-equiv="refresh" content="{{.RefreshSeconds}}">{{end}}
<title>{{.Title}} · spanscope</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:system-ui,sans-serif;background:#f9fafb;color:#111827;font-size:14px;line-height:1.5}
a{color:#2563eb;text-decoration:none}
a:hover{text-decoration:underline}
nav{background:#fff;border-bottom:1px solid #e5e7eb;padding:10px 24px;display:flex;gap:16px;align-items:center}
nav .brand{font-weight:700;font-size:16px}
main{max-width:1200px;margin:0 auto;padding:24px}
h1{font-size:22px;font-weight:700;margin-bottom:12px}
h2{font-size:16px;font-weight:600;margin-bottom:8px}
.panel{background:#fff;border:1px solid #e5e7eb;border-radius:8px;padding:16px;margin-bottom:16px}
.cards{display:grid;grid-template-columns:repeat(4,1fr);gap:12px}
.lbl{font-size:12px;color:#6b7280}
.val{font-weight:600}
.mono{font-family:ui-monospace,monospace}
table{width:100%;border-collapse:collapse}
th{text-align:left;font-size:12px;color:#6b7280;padding:6px 8px;border-bottom:1px solid #e5e7eb}
td{padding:6px 8px;border-bottom:1px solid #f3f4f6;vertical-align:middle}
.badge{display:inline-block;padding:1px 8px;border-radius:10px;font-size:11px;color:#fff;margin-right:4px}
.ok{color:#059669}
.err{color:#dc2626}
.alert{background:#fef2f2;border:1px solid #fecaca;color:#991b1b;border-radius:6px;padding:10px 14px;margin-bottom:16px}
.empty{color:#6b7280;padding:24px;text-align:center}
button{background:#2563eb;color:#fff;border:none;border-radius:4px;padding:6px 14px;cursor:pointer}
.grid{display:grid;grid-template-columns:2fr 1fr;gap:16px}
.tl-row{display:flex;align-items:center;gap:8px;padding:2px 0}
.tl-label{width:260px;flex-shrink:0;overflow:hidden;text-overflow:ellipsis;white-space:nowrap;font-size:12px}
.tl-track{flex:1;position:relative;height:22px;background:#f3f4f6;border-radius:3px}
.tl-bar{position:absolute;top:0;height:22px;border-radius:3px;min-width:2px}
.tl-dur{width:80px;flex-shrink:0;text-align:right;font-size:12px;color:#6b7280}
.tl-row.error .tl-label{color:#dc2626;font-weight:600}
.swatch{display:inline-block;width:12px;height:12px;border-radius:6px;vertical-align:middle;margin-right:6px}
.error-item{background:#fef2f2;border:1px solid #fecaca;border-radius:4px;padding:8px;margin-bottom:6px;font-size:13px}
</style>
</head>
<body>
<nav><a class="brand" href="/">spanscope</a><a href="/">Recent traces</a></nav>
<main>
{{template "content" .}}
</main>
</body>
</html>{{end}}
`

const tmplList = `
{{define "content"}}
<div style="display:flex;justify-content:space-between;align-items:center;margin-bottom:12px">
  <h1>Recent Traces</h1>
  <form method="post" action="/refresh"><button type="submit">Refresh</button></form>
</div>
{{with .State}}{{if .Err}}<div class="alert">Failed to fetch traces: {{.ErrorText}}</div>{{end}}{{end}}
<div class="panel">
{{if not .State.Loaded}}
  <p class="empty">{{if .State.Err}}Traces could not be loaded yet.{{else}}Loading traces...{{end}}</p>
{{else if not .Rows}}
  <p class="empty">No traces found.</p>
{{else}}
  <table>
    <thead><tr><th>Trace</th><th>Root service</th><th>Duration</th><th>Status</th><th>Services</th></tr></thead>
    <tbody>
    {{range .Rows}}
      <tr>
        <td class="mono"><a href="/traces/{{.TraceID}}">{{.ShortID}}</a></td>
        <td><span class="swatch" style="{{swatch .RootColor}}"></span>{{.RootService}}</td>
        <td>{{.Duration}}</td>
        <td>{{if .HasError}}<span class="err">Error</span>{{else}}<span class="ok">OK</span>{{end}}</td>
        <td>{{range .Services}}<span class="badge" style="{{swatch .Color}}">{{.Name}}</span>{{end}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>
{{end}}
</div>
{{if not .State.UpdatedAt.IsZero}}<p class="lbl">Updated {{.State.UpdatedAt.Format "15:04:05"}} · refreshes every {{.RefreshSeconds}}s</p>{{end}}
{{end}}
`

const tmplDetail = `
{{define "content"}}
<p style="margin-bottom:12px"><a href="/">&larr; Back to Traces</a></p>
{{if eq .State.Status "not_found"}}
  <div class="alert">Trace not found: <span class="mono">{{.State.TraceID}}</span></div>
{{else if eq .State.Status "failed"}}
  <div class="alert">Failed to fetch trace. Please try again.<br><span class="lbl">{{.State.ErrorText}}</span></div>
  <p><a href="/traces/{{.State.TraceID}}">Retry</a></p>
{{else if eq .State.Status "superseded"}}
  <p class="empty">This trace was reloaded in another request before it finished loading.</p>
  <p><a href="/traces/{{.State.TraceID}}">Retry</a></p>
{{else if eq .State.Status "no_data"}}
  <div class="panel"><h1>Trace Details</h1><p class="mono">{{.State.TraceID}}</p></div>
  <div class="panel"><p class="empty">No span data available</p></div>
{{else}}{{with .State.Detail}}
  <div class="panel">
    <h1>Trace Details</h1>
    <div class="cards">
      <div><div class="lbl">Trace ID</div><div class="val mono" title="{{.TraceID}}">{{shortID .TraceID}}</div></div>
      <div><div class="lbl">Root Service</div><div class="val">{{.Summary.RootService}}</div></div>
      <div><div class="lbl">Duration</div><div class="val">{{duration .Summary.TotalDuration}}</div></div>
      <div><div class="lbl">Spans</div><div class="val">{{.Summary.SpanCount}}</div></div>
    </div>
  </div>
  <div class="grid">
    <div class="panel">
      <h2>Waterfall Timeline</h2>
      {{range .Rows}}
      <div class="tl-row{{if .IsError}} error{{end}}">
        <div class="tl-label" style="{{indent .Depth}}" title="{{.Name}} ({{.ServiceName}})">{{.Name}}</div>
        <div class="tl-track"><span class="tl-bar" style="{{barStyle .}}" title="{{.Name}} ({{.ServiceName}}) {{.DurationText}}"></span></div>
        <div class="tl-dur">{{.DurationText}}</div>
      </div>
      {{end}}
    </div>
    <div>
      <div class="panel">
        <h2>Services</h2>
        {{range .Legend}}<div><span class="swatch" style="{{swatch .Color}}"></span>{{.Service}} <span class="lbl">({{.Count}})</span></div>{{end}}
      </div>
      <div class="panel">
        <h2>Errors{{if .Errors}} ({{len .Errors}}){{end}}</h2>
        {{range .Errors}}
          <div class="error-item"><div class="val">{{.Name}}</div><div>{{.ServiceName}}</div><div class="lbl">{{.StatusCode}}</div></div>
        {{else}}
          <p class="lbl">No errors detected</p>
        {{end}}
      </div>
    </div>
  </div>
{{end}}{{end}}
{{end}}
`
