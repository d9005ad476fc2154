package notify

import (
	"bytes"
	htemplate "html/template"
	"strings"
	ttemplate "text/template"
	"time"

	"github.com/sakif/forkwatch/internal/model"
)

// TimeLayout matches the en-IN locale rendering, e.g. "5/6/2024, 7:30:00 pm".
const TimeLayout = "2/1/2006, 3:04:05 pm"

const htmlBody = `<h2>New Fork Alert!</h2>
<p>Your repository <strong>{{.Repository}}</strong> has been forked by <strong>{{.ForkedBy}}</strong>.</p>
<p>Fork Details:</p>
<ul>
  <li>Fork URL: <a href="{{.ForkURL}}">{{.ForkName}}</a></li>
  <li>Forked by: <a href="{{.SenderURL}}">{{.ForkedBy}}</a></li>
  <li>Created at: {{.CreatedAt}}</li>
</ul>
<p>View the fork: <a href="{{.ForkURL}}">{{.ForkURL}}</a></p>
`

const textBody = `New Fork Alert!

Your repository {{.Repository}} has been forked by {{.ForkedBy}}.

Fork Details:
  - Fork URL: {{.ForkName}} ({{.ForkURL}})
  - Forked by: {{.ForkedBy}} ({{.SenderURL}})
  - Created at: {{.CreatedAt}}

View the fork: {{.ForkURL}}
`

var (
	htmlTmpl = htemplate.Must(htemplate.New("fork.html").Parse(htmlBody))
	textTmpl = ttemplate.Must(ttemplate.New("fork.txt").Parse(textBody))
)

type templateData struct {
	Repository string
	ForkedBy   string
	ForkName   string
	ForkURL    string
	SenderURL  string
	CreatedAt  string
}

// Subject is the notification subject line for originalRepo.
func Subject(originalRepo string) string {
	return "New Fork Alert: " + originalRepo
}

// Render produces the HTML and plain-text bodies. Output depends only on its
// arguments.
func Render(originalRepo string, ev model.ForkEvent, loc *time.Location) (html, text string, err error) {
	data := templateData{
		Repository: originalRepo,
		ForkedBy:   ev.SenderLogin,
		ForkName:   ev.ForkeeFullName,
		ForkURL:    ev.ForkeeURL,
		SenderURL:  ev.SenderURL,
		CreatedAt:  FormatCreatedAt(ev.ForkeeCreatedAt, loc),
	}

	var hb, tb bytes.Buffer
	if err := htmlTmpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err := textTmpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

// FormatCreatedAt renders an RFC 3339 timestamp in loc. Anything that does
// not parse is returned unchanged.
func FormatCreatedAt(raw string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return t.In(loc).Format(TimeLayout)
}
