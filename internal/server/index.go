// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"html/template"
	"net/http"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>Paper Harvester</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; color: #111; }
    h1 { margin-top: 0; font-size: 22px; }
    .row { display:flex; gap:8px; align-items:center; margin-bottom: 12px; }
    .btn { padding: 8px 14px; border: 0; background: #111; color: #fff; border-radius: 8px; cursor: pointer; }
    progress { width: 100%; height: 16px; }
    #log { background: #fafafa; border: 1px solid #eee; padding: 10px; height: 320px; overflow-y: auto; font-family: ui-monospace, monospace; font-size: 12px; }
  </style>
</head>
<body>
  <h1>Paper Harvester</h1>
  <form id="upload" class="row">
    <input type="file" name="file" accept=".xlsx,.xlsm,.csv" required>
    <select name="source">
      <option value="{{.Unpaywall}}">Unpaywall</option>
      <option value="{{.Mirror}}">Mirror</option>
    </select>
    <button class="btn" type="submit">Start</button>
    <button class="btn" type="button" id="stop">Stop</button>
    <a href="/download">Download articles</a>
    <a href="/report">Download report</a>
  </form>
  <progress id="progress" value="0" max="1"></progress>
  <div id="log"></div>
  <script>
    const log = document.getElementById('log');
    const bar = document.getElementById('progress');
    function line(text) {
      const div = document.createElement('div');
      div.textContent = text;
      log.appendChild(div);
      log.scrollTop = log.scrollHeight;
    }
    const es = new EventSource('/events');
    es.addEventListener('log', e => line(JSON.parse(e.data).message));
    es.addEventListener('progress', e => {
      const p = JSON.parse(e.data);
      bar.max = p.total;
      bar.value = p.current;
    });
    document.getElementById('upload').addEventListener('submit', async e => {
      e.preventDefault();
      const res = await fetch('/upload', { method: 'POST', body: new FormData(e.target) });
      const body = await res.json();
      line(body.message || body.error);
    });
    document.getElementById('stop').addEventListener('click', async () => {
      const res = await fetch('/stop', { method: 'POST' });
      line((await res.json()).message);
    });
  </script>
</body>
</html>
`))

// Index serves the upload page.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Unpaywall, Mirror string }{string(types.SourceUnpaywall), string(types.SourceMirror)}
	if err := indexPage.Execute(w, data); err != nil {
		s.log.WithError(err).Error("rendering index failed")
	}
}
