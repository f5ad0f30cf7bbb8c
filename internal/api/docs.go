package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>Chartdesk API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <a href="/docs/feeds" style="
    position: fixed;
    top: 12px;
    right: 16px;
    z-index: 9999;
    background: #161b22;
    border: 1px solid #30363d;
    border-radius: 6px;
    color: #58a6ff;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
    font-size: 12px;
    font-weight: 500;
    padding: 5px 12px;
    text-decoration: none;
  ">Event Feed Docs →</a>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`


const feedDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Feeds - Chartdesk</title>
  <style>
    body { margin: 0; padding: 24px 32px; background: #0d1117; color: #c9d1d9;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; font-size: 14px; line-height: 1.6; }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; font-weight: 600; }
    code, pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; }
    code { padding: 1px 5px; }
    pre { padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #30363d; padding: 6px 12px; text-align: left; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Event feeds</h1>

  <h2>Server-sent events: <code>GET /events</code></h2>
  <p>Streams overlay events of every session. Narrow the stream with
  <code>?session=&lt;id&gt;</code> (events without a session always pass) and
  <code>?types=frame,notice</code>. Comment lines (<code>: ping</code>) keep idle
  connections open.</p>
  <table>
    <tr><th>event</th><th>data</th></tr>
    <tr><td><code>frame</code></td><td><code>{mode, annotations}</code>: the Chart.js annotation map after each redraw</td></tr>
    <tr><td><code>notice</code></td><td><code>{level, message}</code>: success, info, warning or error toast</td></tr>
    <tr><td><code>mode</code></td><td>the interaction mode, including wizard step and pending points</td></tr>
    <tr><td><code>selection</code></td><td>the selected element, or none</td></tr>
    <tr><td><code>note_form</code></td><td>a note position awaits <code>POST /api/v1/sessions/{id}/note</code></td></tr>
    <tr><td><code>note_popup</code>, <code>note_popup_hidden</code></td><td>hover popup for a note marker</td></tr>
    <tr><td><code>change</code></td><td><code>{symbol, op, kind, id}</code> after each store mutation</td></tr>
    <tr><td><code>indicator</code></td><td><code>{name, enabled}</code></td></tr>
    <tr><td><code>instrument</code></td><td><code>{symbol, period, currentPrice, change, changePercent}</code></td></tr>
    <tr><td><code>session_closed</code></td><td><code>{id}</code></td></tr>
  </table>

  <h2>Pointer channel: <code>GET /ws/sessions/{id}</code></h2>
  <p>WebSocket for high-rate input. Send one JSON text frame per DOM event;
  each is answered in order.</p>
  <pre>&rarr; {"type":"mousemove","x":412.5,"y":188}
&larr; {"type":"mousemove","processed":false}
&rarr; {"type":"keydown","key":"Escape"}
&larr; {"type":"keydown","processed":true}</pre>
  <p>Types: <code>click</code>, <code>mousedown</code>, <code>mousemove</code>,
  <code>mouseup</code>, <code>mouseleave</code>, <code>keydown</code>. Moves
  arriving faster than the configured interval are coalesced and answered with
  <code>processed: false</code>.</p>
</body>
</html>`
