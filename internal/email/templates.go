package email

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

const (
	TemplateTaskAssigned      = "task_assigned"
	TemplateAreaChiefAssigned = "area_chief_assigned"
	TemplatePasswordReset     = "password_reset"
)

// TaskAssignedData feeds the task_assigned template.
type TaskAssignedData struct {
	AppName    string
	UserName   string
	TaskTitle  string
	AreaName   string
	DueAt      string
	Priority   string
	AssignedBy string
	TaskURL    string
}

type AreaChiefData struct {
	AppName  string
	UserName string
	AreaName string
	AreaURL  string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type pair struct {
	html *template.Template
	text *texttemplate.Template
}

var templates = map[string]pair{
	TemplateTaskAssigned: {
		html: template.Must(template.New(TemplateTaskAssigned).Parse(layoutOpen + taskAssignedHTML + layoutClose)),
		text: texttemplate.Must(texttemplate.New(TemplateTaskAssigned).Parse(taskAssignedText)),
	},
	TemplateAreaChiefAssigned: {
		html: template.Must(template.New(TemplateAreaChiefAssigned).Parse(layoutOpen + areaChiefHTML + layoutClose)),
		text: texttemplate.Must(texttemplate.New(TemplateAreaChiefAssigned).Parse(areaChiefText)),
	},
	TemplatePasswordReset: {
		html: template.Must(template.New(TemplatePasswordReset).Parse(layoutOpen + passwordResetHTML + layoutClose)),
		text: texttemplate.Must(texttemplate.New(TemplatePasswordReset).Parse(passwordResetText)),
	},
}

// Render produces the HTML and plain-text bodies for a named template.
func Render(name string, data any) (string, string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var html, text bytes.Buffer
	if err := tmpl.html.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	return html.String(), text.String(), nil
}

const layoutOpen = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0b6e4f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0b6e4f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
`

const layoutClose = `
    <div class="footer">
        <p>Este mensaje fue enviado automáticamente por {{.AppName}}.</p>
    </div>
</body>
</html>`

const taskAssignedHTML = `
    <h2>Nueva tarea asignada</h2>
    <p>Hola {{.UserName}},</p>
    <p>{{.AssignedBy}} te asignó la tarea <strong>{{.TaskTitle}}</strong> en {{.AreaName}}.</p>
    <p>Prioridad: {{.Priority}}<br>Vence: {{.DueAt}}</p>
    <p><a href="{{.TaskURL}}" class="button">Ver tarea</a></p>
`

const taskAssignedText = `Hola {{.UserName}},

{{.AssignedBy}} te asignó la tarea "{{.TaskTitle}}" en {{.AreaName}}.
Prioridad: {{.Priority}}
Vence: {{.DueAt}}

{{.TaskURL}}
`

const areaChiefHTML = `
    <h2>Fuiste designado jefe de área</h2>
    <p>Hola {{.UserName}},</p>
    <p>Ahora eres responsable del área <strong>{{.AreaName}}</strong>.</p>
    <p><a href="{{.AreaURL}}" class="button">Ver área</a></p>
`

const areaChiefText = `Hola {{.UserName}},

Ahora eres responsable del área "{{.AreaName}}".

{{.AreaURL}}
`

const passwordResetHTML = `
    <h2>Restablecer contraseña</h2>
    <p>Hola {{.UserName}},</p>
    <p>Recibimos una solicitud para restablecer tu contraseña.</p>
    <p><a href="{{.ResetURL}}" class="button">Restablecer contraseña</a></p>
    <div class="warning">
        <strong>Importante:</strong> este enlace vence en 1 hora.
    </div>
`

const passwordResetText = `Hola {{.UserName}},

Recibimos una solicitud para restablecer tu contraseña. Usa este enlace, vence en 1 hora:

{{.ResetURL}}
`
