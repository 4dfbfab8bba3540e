package email

import "html/template"

const layoutStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1f6f5c; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1f6f5c; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .quote { border-left: 3px solid #ccc; padding-left: 12px; color: #555; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #1f6f5c; }`

var invitationTmpl = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Interview invitation</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>

    <h2>Hi{{if .ExpertName}} {{.ExpertName}}{{end}},</h2>

    <p>{{if .SenderName}}{{.SenderName}}{{else}}A colleague{{end}} would like to capture your knowledge on <strong>{{.Topic}}</strong>.
    A short guided interview turns what you know into a document your team can reuse.</p>
    {{if .Message}}<p class="quote">{{.Message}}</p>{{end}}

    <p><a href="{{.InviteURL}}" class="button">Start the interview</a></p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.InviteURL}}</p>
    {{if .ExpiresDate}}<p>This invitation expires on {{.ExpiresDate}}.</p>{{end}}

    <div class="footer">If you weren't expecting this email, you can ignore it.</div>
</body>
</html>`))

var acceptedTmpl = template.Must(template.New("accepted").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Invitation accepted</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>

    <h2>Good news{{if .SenderName}}, {{.SenderName}}{{end}}!</h2>

    <p>{{if .ExpertName}}{{.ExpertName}}{{else}}Your expert{{end}} accepted your invitation to talk about <strong>{{.Topic}}</strong>.
    We'll let you know when the interview document is ready.</p>

    <div class="footer">Sent by {{.AppName}}.</div>
</body>
</html>`))

var completedTmpl = template.Must(template.New("completed").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Interview complete</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>

    <h2>The interview on {{.Topic}} is complete</h2>

    <p>{{if .ExpertName}}{{.ExpertName}}{{else}}Your expert{{end}} finished the interview and the knowledge document has been saved.</p>
    {{if .DocumentURL}}<p><a href="{{.DocumentURL}}" class="button">Open the document</a></p>{{end}}

    <div class="footer">Sent by {{.AppName}}.</div>
</body>
</html>`))
