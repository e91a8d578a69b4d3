package mail

import "html/template"

const (
	tplVerification = "verification"
	tplReset        = "password_reset"
)

var templates = template.Must(template.New(tplVerification).Parse(`<div style="font-family:sans-serif">
<h2>Welcome to LearnPath{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>Your confirmation code is:</p>
<p style="font-size:28px;letter-spacing:6px"><b>{{.Code}}</b></p>
<p>Enter it on the verification page to activate your account.</p>
</div>`))

func init() {
	template.Must(templates.New(tplReset).Parse(`<div style="font-family:sans-serif">
<h2>Password reset</h2>
<p>Hi{{if .Name}} {{.Name}}{{end}}, we received a request to reset your password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires in {{.ExpiresIn}}. If you did not ask for this, ignore this email.</p>
</div>`))
}
