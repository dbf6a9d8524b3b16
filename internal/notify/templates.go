package notify

import (
	"context"
	"strings"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
)

// Template keys.
const (
	TemplateApproval     = "transaction_approval"
	TemplateApproved     = "transaction_approved"
	TemplateDeclined     = "transaction_declined"
	TemplateAutoApproved = "transaction_auto_approved"
	TemplateTest         = "test"
)

const (
	defaultIcon  = "/icon-192x192.png"
	defaultBadge = "/badge-72x72.png"
)

var builtinTemplates = map[string]models.NotificationTemplate{
	TemplateApproval: {
		TitleTemplate: "Purchase approval needed",
		BodyTemplate:  "{{vendor_name}} is requesting {{amount}}",
	},
	TemplateApproved: {
		TitleTemplate: "Purchase approved",
		BodyTemplate:  "The {{amount}} purchase at {{vendor_name}} was approved",
	},
	TemplateDeclined: {
		TitleTemplate: "Purchase declined",
		BodyTemplate:  "The {{amount}} purchase at {{vendor_name}} was declined",
	},
	TemplateAutoApproved: {
		TitleTemplate: "Purchase auto-approved",
		BodyTemplate:  "No response in time, so the {{amount}} purchase at {{vendor_name}} was approved",
	},
	TemplateTest: {
		TitleTemplate: "Test notification",
		BodyTemplate:  "Push notifications are working on this device",
	},
}

// Rendered is a template with its variables substituted.
type Rendered struct {
	Title string
	Body  string
	Icon  string
	Badge string
}

// Templates resolves stored templates, falling back to built-in text.
type Templates struct {
	repo repository.TemplateRepository
}

// NewTemplates creates a resolver. repo may be nil.
func NewTemplates(repo repository.TemplateRepository) *Templates {
	return &Templates{repo: repo}
}

// Render looks up key and substitutes {{name}} placeholders from vars.
// Unknown placeholders are left as written.
func (t *Templates) Render(ctx context.Context, key string, vars map[string]string) (Rendered, error) {
	tmpl, ok := builtinTemplates[key]
	if t.repo != nil {
		stored, err := t.repo.Get(ctx, key)
		if err != nil {
			return Rendered{}, err
		}
		if stored != nil {
			tmpl, ok = *stored, true
		}
	}
	if !ok {
		tmpl = models.NotificationTemplate{TitleTemplate: key}
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	r := strings.NewReplacer(pairs...)

	out := Rendered{
		Title: r.Replace(tmpl.TitleTemplate),
		Body:  r.Replace(tmpl.BodyTemplate),
		Icon:  tmpl.IconURL,
		Badge: tmpl.BadgeURL,
	}
	if out.Icon == "" {
		out.Icon = defaultIcon
	}
	if out.Badge == "" {
		out.Badge = defaultBadge
	}
	return out, nil
}
