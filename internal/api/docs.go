package api

import (
	"bytes"
	"html/template"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
)

// docsOperation is one row of the operation index on /docs.
type docsOperation struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	Anchor  string
}

// streamOperations are served by plain handlers and do not appear in the
// OpenAPI document.
var streamOperations = []docsOperation{
	{Method: http.MethodGet, Path: "/api/v1/media/events", Summary: "Media feed (Server-Sent Events)", Tag: "Feeds"},
	{Method: http.MethodGet, Path: "/api/v1/media/ws", Summary: "Media feed (WebSocket)", Tag: "Feeds"},
}

// docsOperations lists the registered operations grouped by tag, then path.
func docsOperations(oapi *huma.OpenAPI) []docsOperation {
	var ops []docsOperation
	for path, item := range oapi.Paths {
		for _, m := range []struct {
			method string
			op     *huma.Operation
		}{
			{http.MethodGet, item.Get},
			{http.MethodPost, item.Post},
			{http.MethodPut, item.Put},
			{http.MethodPatch, item.Patch},
			{http.MethodDelete, item.Delete},
		} {
			if m.op == nil {
				continue
			}
			tag := "Other"
			if len(m.op.Tags) > 0 {
				tag = m.op.Tags[0]
			}
			ops = append(ops, docsOperation{
				Method:  m.method,
				Path:    path,
				Summary: m.op.Summary,
				Tag:     tag,
				Anchor:  "#/operations/" + m.op.OperationID,
			})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Tag != ops[j].Tag {
			return ops[i].Tag < ops[j].Tag
		}
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return append(ops, streamOperations...)
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { margin: 0; background: #0d1117; color: #c9d1d9; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; }
    header { padding: 16px 24px; border-bottom: 1px solid #30363d; }
    header h1 { font-size: 18px; margin: 0 0 4px; }
    header p { font-size: 13px; margin: 0 0 12px; color: #8b949e; }
    header a.feeds { color: #58a6ff; font-size: 12px; }
    table { border-collapse: collapse; font-size: 12px; }
    td { padding: 3px 12px 3px 0; }
    td.method { font-family: monospace; font-weight: 600; color: #7ee787; }
    td.path { font-family: monospace; }
    td.path a { color: #c9d1d9; text-decoration: none; }
    td.tag { color: #8b949e; }
    main { height: calc(100vh - 40px); }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}} <small>{{.Version}}</small></h1>
    <p>Capture policy, modifier key signal, tab state, decision counters and detected media.
      <a class="feeds" href="/docs/feeds">Media feed reference</a></p>
    <table>
      {{- range .Operations}}
      <tr>
        <td class="tag">{{.Tag}}</td>
        <td class="method">{{.Method}}</td>
        <td class="path">{{if .Anchor}}<a href="{{.Anchor}}">{{.Path}}</a>{{else}}{{.Path}}{{end}}</td>
        <td>{{.Summary}}</td>
      </tr>
      {{- end}}
    </table>
  </header>
  <main>
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      tryItCredentialsPolicy="same-origin"
      darkMode
    />
  </main>
</body>
</html>`))

// renderDocs builds the /docs page from the registered operations.
func renderDocs(oapi *huma.OpenAPI) ([]byte, error) {
	data := struct {
		Title      string
		Version    string
		Operations []docsOperation
	}{
		Title:      "Linkgrabber Control API",
		Operations: docsOperations(oapi),
	}
	if oapi.Info != nil {
		data.Title = oapi.Info.Title
		data.Version = oapi.Info.Version
	}
	var buf bytes.Buffer
	if err := docsTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
