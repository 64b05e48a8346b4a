package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"finlern/internal/repo"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcMap = template.FuncMap{
	"formatDateTime": func(value interface{}) string {
		switch v := value.(type) {
		case time.Time:
			if v.IsZero() {
				return ""
			}
			return v.UTC().Format("2006-01-02 15:04 MST")
		case *time.Time:
			if v == nil || v.IsZero() {
				return ""
			}
			return v.UTC().Format("2006-01-02 15:04 MST")
		default:
			return ""
		}
	},
}

var templates = mustParse("enrollment_email.html")

func mustParse(pages ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		// each template is layout + page
		tmpl := template.Must(template.New(page).Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page))
		out[page] = tmpl
	}
	return out
}

// MailData is the input of the enrollment notification.
type MailData struct {
	Title      string
	Enrollment repo.Enrollment
}

// Message is a rendered notification.
type Message struct {
	Subject string
	HTML    string
}

// EnrollmentMessage renders the notification for e. Every value is HTML
// escaped by the template engine.
func EnrollmentMessage(e repo.Enrollment) (Message, error) {
	subject := "New enrollment: " + truncateText(oneLine(e.CourseType), 120)
	body, err := Render("enrollment_email.html", MailData{Title: subject, Enrollment: e})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, HTML: body}, nil
}

// Render executes the named page inside the layout.
func Render(name string, data interface{}) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func truncateText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if value == "" || limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

// oneLine keeps header values on a single line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
