package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/matheus3301/relay/internal/store"
)

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:32px;background:#f8fafc;font-family:sans-serif;color:#334155;">
  <div style="max-width:560px;margin:0 auto;background:#fff;border-radius:12px;padding:32px;">
    <p>Hi <strong>{{.ToName}}</strong>,</p>
    {{template "body" .}}
    <p style="text-align:center;margin-top:32px;">
      <a href="{{.AppURL}}" style="background:#3b82f6;color:#fff;padding:12px 28px;border-radius:8px;text-decoration:none;">{{.Action}}</a>
    </p>
    <p style="color:#94a3b8;font-size:12px;margin-top:32px;">{{.Footer}}</p>
  </div>
</body>
</html>{{end}}

{{define "new_message"}}{{template "layout" .}}{{end}}
{{define "connection_request"}}{{template "layout" .}}{{end}}
`))

var bodies = map[store.NotificationKind]string{
	store.NotifyNewMessage: `{{define "body"}}<p><strong>{{.FromName}}</strong> sent you a message while you were away:</p>
<blockquote style="border-left:4px solid #3b82f6;margin:0;padding:12px 16px;background:#f1f5f9;">{{.Preview}}</blockquote>{{end}}`,
	store.NotifyConnectionRequest: `{{define "body"}}<p><strong>{{.FromName}}</strong> wants to connect with you. The request expires in 24 hours.</p>{{end}}`,
}

type emailData struct {
	Title, ToName, FromName, Preview, AppURL, Action, Footer string
}

// render builds the subject and HTML body of a notification email.
func render(n store.Notification, appURL string) (string, string, error) {
	body, ok := bodies[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for notification kind %q", n.Kind)
	}
	tmpl, err := template.Must(emailTemplates.Clone()).Parse(body)
	if err != nil {
		return "", "", fmt.Errorf("parse %s template: %w", n.Kind, err)
	}

	data := emailData{ToName: n.ToName, FromName: n.FromName, Preview: n.Preview, AppURL: appURL}
	switch n.Kind {
	case store.NotifyNewMessage:
		data.Title = "New message from " + n.FromName
		data.Action = "Open conversation"
		data.Footer = "You received this because you were offline."
		if appURL != "" && n.ConversationID != "" {
			data.AppURL = strings.TrimRight(appURL, "/") + "/c/" + n.ConversationID
		}
	case store.NotifyConnectionRequest:
		data.Title = n.FromName + " wants to connect"
		data.Action = "View request"
		data.Footer = "Connection requests expire after 24 hours."
	}

	var sb strings.Builder
	if err := tmpl.ExecuteTemplate(&sb, string(n.Kind), data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return data.Title, sb.String(), nil
}
