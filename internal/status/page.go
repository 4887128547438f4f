package status

import "html/template"

var rootPage = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>relayd setup</title>
<style>
body{font-family:sans-serif;margin:2rem;background:#f7f7f7;}
main{max-width:720px;margin:0 auto;background:#fff;padding:2rem;border-radius:1rem;box-shadow:0 1rem 2rem rgba(0,0,0,0.1);}
label{display:block;margin-top:1rem;font-weight:600;}
input{width:100%;padding:.75rem;margin-top:.5rem;border:1px solid #ddd;border-radius:.5rem;}
button{margin-top:1.5rem;padding:.75rem 1.5rem;border:none;border-radius:.5rem;background:#2563eb;color:#fff;font-size:1rem;cursor:pointer;}
section{margin-top:2rem;}
.status{padding:1rem;background:#e0f2fe;border-radius:.75rem;}
code{background:#e2e8f0;padding:.25rem .5rem;border-radius:.5rem;}
</style></head><body><main>
<h1>relayd setup</h1>
<div class="status">
<p><strong>WiFi:</strong> {{if .WiFiConnected}}Connected{{else}}Not connected{{end}} ({{.LinkState}})</p>
<p><strong>Phase:</strong> {{.Phase}}</p>
<p><strong>IP:</strong> {{.IP}}</p>
<p><strong>Server:</strong> <code>{{.ServerURL}}</code></p>
</div>
<section><h2>WiFi and server</h2>
<form method="POST" action="/configure">
<label for="ssid">WiFi SSID</label><input id="ssid" name="ssid" required value="{{.SSID}}">
<label for="pass">WiFi password</label><input id="pass" name="pass" type="password" placeholder="leave blank to keep current">
<label for="server">Controller URL</label><input id="server" name="server" required value="{{.ServerURL}}">
<button type="submit">Save and connect</button>
</form></section>
<section><h2>Device</h2><ul>
<li><strong>MAC:</strong> {{.MAC}}</li>
<li><strong>Device ID:</strong> {{.DeviceID}}</li>
<li><strong>Token:</strong> {{.Token}}</li>
</ul></section>
<section><h2>Relay</h2><p>Currently: <strong>{{if .RelayOn}}ON{{else}}OFF{{end}}</strong> ({{.Polarity}}{{if .ForceOff}}, force-off lock{{end}})</p></section>
</main></body></html>
`))

var savedPage = template.Must(template.New("saved").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Configuration saved</title></head><body>
<p>Configuration saved. Connecting to <strong>{{.}}</strong>. Go back to the <a href="/">start page</a> to follow the status.</p>
</body></html>
`))
