package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s relay.State) string {
		switch s {
		case relay.StateOn:
			return "on"
		case relay.StatePulsing:
			return "pulsing"
		default:
			return "off"
		}
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Config.SystemName}}{{.Config.SystemName}}{{else}}DPM Controller{{end}}</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.pulsing { color: orange; font-weight: bold; }
.matching { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{if .Config.SystemName}}{{.Config.SystemName}}{{else}}DPM Controller{{end}}</h1>

<h2>Relays</h2>
<table>
<tr><th>ID</th><th>Name</th><th>Enabled</th><th>Scheduled</th><th>State</th></tr>
{{range .Relays}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td>{{yesno .Enabled}}</td><td>{{yesno .Scheduled}}</td>
<td class="{{stateClass .State}}">{{.State}}{{if not .PulseDeadline.IsZero}} until {{.PulseDeadline.UTC.Format "15:04:05"}}{{end}}</td>
</tr>
{{end}}</table>

<h2>Tasks</h2>
<table>
<tr><th>ID</th><th>Name</th><th>Trigger</th><th>Matching</th></tr>
{{range .Tasks}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Source}}.{{.Field}} {{.Op}} {{.Value}}</td>
<td{{if .Matching}} class="matching"{{end}}>{{yesno .Matching}}</td>
</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Ticks</th><td>{{.Counts.Ticks}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
<tr><th>Task fires</th><td>{{.Counts.TaskFires}}</td></tr>
<tr><th>Task clears</th><td>{{.Counts.TaskClears}}</td></tr>
<tr><th>Apply failures</th><td>{{.Counts.ApplyFailures}}</td></tr>
<tr><th>Cyclic suppressed</th><td>{{.Counts.CyclicSuppressed}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has an Uptime() method but the template needs a field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
