package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"walkin-queue-coordinator/internal/models"
)

func TestRenderDefaults(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	title, body, err := r.Render(models.KindQueueNotification, TemplateData{
		VenueName:        "Chop Shop",
		VenueAddress:     "12 MG Road",
		EstimatedMinutes: 10,
		Services:         []string{"cut", "shave"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(title, "Chop Shop") {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(body, "10 minutes") || !strings.Contains(body, "cut, shave") {
		t.Fatalf("body = %q", body)
	}
}

func TestRenderEveryKind(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	kinds := []models.NotificationKind{
		models.KindQueueNotification, models.KindArrivalVerified,
		models.KindServiceStarting, models.KindServiceCompleted,
		models.KindNoShow, models.KindPositionUpdate,
	}
	data := TemplateData{VenueName: "V", Reason: "r", Position: 2, WaitMinutes: 30}
	for _, k := range kinds {
		title, body, err := r.Render(k, data)
		if err != nil {
			t.Fatalf("Render(%s): %v", k, err)
		}
		if title == "" || body == "" {
			t.Fatalf("Render(%s) produced empty output", k)
		}
	}
}

func TestRenderUnknownKind(t *testing.T) {
	r, _ := NewRenderer("")
	if _, _, err := r.Render(models.NotificationKind("bogus"), TemplateData{}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestRendererYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	content := "no_show:\n  title: \"Custom title\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	r, err := NewRenderer(path)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	title, body, err := r.Render(models.KindNoShow, TemplateData{VenueName: "V", Reason: "late"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if title != "Custom title" {
		t.Fatalf("override not applied, title = %q", title)
	}
	// body keeps the default when the override only sets the title
	if !strings.Contains(body, "late") {
		t.Fatalf("body = %q", body)
	}
}
