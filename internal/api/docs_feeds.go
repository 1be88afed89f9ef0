package api

const feedsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Media Feeds - Linkgrabber</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 16px;
    }
    nav .brand { font-weight: 600; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 24px 16px 64px; }
    h2 { color: #e6edf3; border-bottom: 1px solid #21262d; padding-bottom: 6px; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
    th { background: #161b22; }
  </style>
</head>
<body>
  <nav>
    <span class="brand">Linkgrabber</span>
    <span>/</span>
    <span>Media Feeds</span>
    <a href="/docs">REST API Docs</a>
  </nav>
  <main>
    <h2>Endpoints</h2>
    <table>
      <tr><th>Transport</th><th>Path</th></tr>
      <tr><td>Server-sent events</td><td><code>GET /api/v1/media/events</code></td></tr>
      <tr><td>WebSocket (text frames)</td><td><code>GET /api/v1/media/ws</code></td></tr>
    </table>

    <h2>Filters</h2>
    <table>
      <tr><th>Query</th><th>Meaning</th></tr>
      <tr><td><code>feeds</code></td><td>Comma separated feed names. Only <code>media</code> exists today.</td></tr>
      <tr><td><code>tab</code></td><td>Only events detected on this tab (CDP target id).</td></tr>
    </table>

    <h2>Payload</h2>
    <p>Each SSE <code>data:</code> line and each WebSocket frame carries one media item. A URL is reported once per tab.</p>
    <pre>{
  "id": "5f0c8c1e-8a43-4b0e-9d55-2f6f3c3b1f11",
  "type": "media",
  "mediaType": "hls",
  "url": "https://cdn.example.com/live/index.m3u8",
  "requestHeaders": {"Referer": "https://example.com/watch"},
  "responseHeaders": {"Content-Type": "application/vnd.apple.mpegurl"},
  "tabId": "9A1F6C0E2B",
  "documentUrl": "https://example.com/watch",
  "detectedAt": "2026-01-02T15:04:05Z"
}</pre>

    <h2>Examples</h2>
    <pre>curl -N 'http://127.0.0.1:8190/api/v1/media/events?tab=9A1F6C0E2B'

websocat 'ws://127.0.0.1:8190/api/v1/media/ws?feeds=media'</pre>

    <p>Slow consumers are not waited for. Events that do not fit a client's buffer are dropped and counted in <code>feed_dropped</code> on <code>GET /api/v1/stats</code>.</p>
  </main>
</body>
</html>`
