package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
	"github.com/sweeney/envmon/internal/status"
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
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"rowTime": func(t time.Time) string {
		return t.Format(logfile.RowTimeFormat)
	},
	"sensorName": func(sensors []string, i int) string {
		if i < len(sensors) {
			return sensors[i]
		}
		return fmt.Sprintf("value%d", i)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Environment Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.logging { color: green; font-weight: bold; }
.faulted { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Environment Monitor</h1>

<h2>Device</h2>
<table>
<tr><th>State</th><td class="{{if eq .State "LOGGING"}}logging{{else if eq .State "FAULTED"}}faulted{{else}}idle{{end}}">{{orUnknown .State}}</td></tr>
<tr><th>Role</th><td>{{orUnknown .Role}}</td></tr>
<tr><th>Name</th><td>{{orUnknown .DeviceName}}</td></tr>
<tr><th>Sensors</th><td>{{if .Sensors}}{{range $i, $s := .Sensors}}{{if $i}}, {{end}}{{$s}}{{end}}{{else}}not resolved{{end}}</td></tr>
<tr><th>BLE</th><td class="{{if eq .BLE "connected"}}connected{{else if eq .BLE "disconnected"}}disconnected{{end}}">{{.BLE}}</td></tr>
{{if .Peripherals}}<tr><th>Peripherals</th><td>{{range $i, $p := .Peripherals}}{{if $i}}, {{end}}{{$p}}{{end}}</td></tr>{{end}}
</table>

<h2>Last Reading</h2>
<table>
{{if .Reading}}
<tr><th>Timestamp</th><td>{{rowTime .Reading.Time}}</td></tr>
{{$sensors := .Sensors}}{{range $i, $f := .Reading.Fields}}<tr><th>{{sensorName $sensors $i}}</th><td>{{$f}}</td></tr>
{{end}}
{{else}}
<tr><td colspan="2">no data yet</td></tr>
{{end}}
</table>

<h2>Logging</h2>
<table>
<tr><th>File</th><td>{{if .LogFile}}{{.LogFile}}{{else}}-{{end}}</td></tr>
<tr><th>Rows written</th><td>{{.Rows}}</td></tr>
<tr><th>Root</th><td>{{.Config.LogRoot}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Serial port</th><td>{{.Config.Port}} @ {{.Config.Baud}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs a value.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
