package notify

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

type Message struct {
	To      string
	Subject string
	Body    string
}

type templateSource struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Catalog renders notification kinds into email messages.
type Catalog struct {
	templates map[models.NotificationKind]compiled
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultTemplates)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	funcs := template.FuncMap{"naira": FormatNaira}
	c := &Catalog{templates: make(map[models.NotificationKind]compiled, len(sources))}
	for kind, src := range sources {
		subject, err := template.New(kind + ".subject").Funcs(funcs).Option("missingkey=error").Parse(src.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := template.New(kind + ".body").Funcs(funcs).Option("missingkey=error").Parse(src.Body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		c.templates[models.NotificationKind(kind)] = compiled{subject: subject, body: body}
	}

	return c, nil
}

func (c *Catalog) Has(kind models.NotificationKind) bool {
	_, ok := c.templates[kind]
	return ok
}

func (c *Catalog) Render(kind models.NotificationKind, to string, data models.NotificationData) (Message, error) {
	t, ok := c.templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var subject, body strings.Builder
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", kind, err)
	}

	return Message{
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}

var amountPrinter = message.NewPrinter(language.English)

// FormatNaira renders an amount as ₦20,000.00. Digits come from the decimal
// itself so large totals keep every kobo.
func FormatNaira(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	whole, kobo, _ := strings.Cut(amount.Abs().StringFixed(2), ".")

	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return "₦" + sign + whole + "." + kobo
	}
	return "₦" + sign + amountPrinter.Sprintf("%d", n) + "." + kobo
}
