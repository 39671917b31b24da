// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package admission

import (
	"html/template"
	"net/http"
)

type deniedPage struct {
	Reason     string
	Code       string
	IP         string
	Support    string
	SupportURL string
}

var deniedTemplate = template.Must(template.New("denied").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Access Restricted</title>
<style>
body{margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;font-family:system-ui,sans-serif;background:#0f172a;color:#f8fafc}
.card{max-width:500px;width:90%;background:rgba(30,41,59,.7);border:1px solid rgba(255,255,255,.1);padding:40px;border-radius:24px;text-align:center}
.reason{color:#ff4757;font-weight:600;margin-bottom:10px}
.ip{background:rgba(255,255,255,.05);padding:12px 20px;border-radius:12px;font-family:monospace;display:inline-block;margin-bottom:28px}
.btn{display:inline-block;background:#25d366;color:#000;padding:14px 28px;text-decoration:none;border-radius:14px;font-weight:600}
p{color:#94a3b8;line-height:1.6}
</style>
</head>
<body>
<div class="card">
<h1>Access Restricted</h1>
<div class="reason" data-code="{{.Code}}">{{.Reason}}</div>
<p>Your access is restricted. Please contact the API owner to authorize your access.</p>
<div class="ip">Your IP: {{.IP}}</div>
{{if .SupportURL}}<div><a class="btn" href="{{.SupportURL}}">Contact support</a></div>{{else if .Support}}<p>{{.Support}}</p>{{end}}
</div>
</body>
</html>
`))

func renderDenied(w http.ResponseWriter, p deniedPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = deniedTemplate.Execute(w, p)
}
