// Package notify renders customer notifications and fans them out across
// the realtime bus, the external message channel and web push.
package notify

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

// TemplateData carries the fields the message templates may reference.
// Unused fields are simply ignored by a given template.
type TemplateData struct {
	VenueName        string
	VenueAddress     string
	EstimatedMinutes int
	Services         []string
	Reason           string
	Position         int
	WaitMinutes      int
}

type messageTemplate struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

var defaultTemplates = map[models.NotificationKind]messageTemplate{
	models.KindQueueNotification: {
		Title: "Your turn is coming up at {{.VenueName}}",
		Body:  "Please arrive within {{.EstimatedMinutes}} minutes. Services: {{join .Services}}. {{.VenueAddress}}",
	},
	models.KindArrivalVerified: {
		Title: "Arrival confirmed",
		Body:  "You're checked in at {{.VenueName}}. We'll call you shortly.",
	},
	models.KindServiceStarting: {
		Title: "You're up at {{.VenueName}}",
		Body:  "Please head over now, your service is starting.",
	},
	models.KindServiceCompleted: {
		Title: "Thanks for visiting {{.VenueName}}",
		Body:  "Your service is complete. See you next time!",
	},
	models.KindNoShow: {
		Title: "Missed your slot at {{.VenueName}}",
		Body:  "Your queue entry was closed: {{.Reason}}",
	},
	models.KindPositionUpdate: {
		Title: "Queue update at {{.VenueName}}",
		Body:  "You're now number {{.Position}} in line, about {{.WaitMinutes}} minutes to go.",
	},
}

var templateFuncs = template.FuncMap{
	"join": func(items []string) string {
		if len(items) == 0 {
			return "as booked"
		}
		return strings.Join(items, ", ")
	},
}

// Renderer turns (kind, data) into a title/body pair. Templates come from
// the built-in defaults, optionally overridden per kind by a YAML file.
type Renderer struct {
	parsed map[models.NotificationKind]struct {
		title *template.Template
		body  *template.Template
	}
}

// NewRenderer loads templates; overridePath is optional.
func NewRenderer(overridePath string) (*Renderer, error) {
	tmpls := make(map[models.NotificationKind]messageTemplate, len(defaultTemplates))
	for k, v := range defaultTemplates {
		tmpls[k] = v
	}

	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("notify: read template file: %w", err)
		}
		var overrides map[models.NotificationKind]messageTemplate
		if err := yaml.Unmarshal(raw, &overrides); err != nil {
			return nil, fmt.Errorf("notify: parse template file: %w", err)
		}
		for k, v := range overrides {
			base := tmpls[k]
			if v.Title != "" {
				base.Title = v.Title
			}
			if v.Body != "" {
				base.Body = v.Body
			}
			tmpls[k] = base
		}
	}

	r := &Renderer{parsed: map[models.NotificationKind]struct {
		title *template.Template
		body  *template.Template
	}{}}
	for k, v := range tmpls {
		title, err := template.New(string(k) + ".title").Funcs(templateFuncs).Parse(v.Title)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s title: %w", k, err)
		}
		body, err := template.New(string(k) + ".body").Funcs(templateFuncs).Parse(v.Body)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s body: %w", k, err)
		}
		r.parsed[k] = struct {
			title *template.Template
			body  *template.Template
		}{title, body}
	}
	return r, nil
}

// Render produces the title and body for a notification kind.
func (r *Renderer) Render(kind models.NotificationKind, data TemplateData) (string, string, error) {
	t, ok := r.parsed[kind]
	if !ok {
		return "", "", errs.New(errs.CodeInvalidInput, "notify.Render", "unknown notification kind: "+string(kind), nil)
	}
	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("notify: render %s title: %w", kind, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("notify: render %s body: %w", kind, err)
	}
	return title.String(), body.String(), nil
}
