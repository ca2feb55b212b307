package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chorequest/chorequest/internal/domain"
)

func TestBuiltinLookup(t *testing.T) {
	c := New()
	tmpl, err := c.GetTemplate("make-bed")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tmpl.Title != "Make your bed" {
		t.Errorf("Title = %q", tmpl.Title)
	}
	if tmpl.BaseXP(1) != 10 || tmpl.BaseXP(5) != 60 {
		t.Errorf("default base XP wrong: L1=%d L5=%d", tmpl.BaseXP(1), tmpl.BaseXP(5))
	}
}

func TestUnknownTemplate(t *testing.T) {
	c := New()
	if _, err := c.GetTemplate("paint-the-fence"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSorted(t *testing.T) {
	c := New()
	list := c.ListTemplates()
	if len(list) == 0 {
		t.Fatal("no builtin templates")
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("not sorted at %d: %s >= %s", i, list[i-1].ID, list[i].ID)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[[template]]
id = "mow-lawn"
title = "Mow the lawn"
category = "garden"
estimated_minutes = 45
[template.base_xp]
"3" = 40

[[template]]
id = "dishes"
title = "Do ALL the dishes"
category = "kitchen"
estimated_minutes = 30
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c := New()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	// New entry with a per-level override on top of the defaults.
	tmpl, err := c.GetTemplate("mow-lawn")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.BaseXP(3) != 40 {
		t.Errorf("override BaseXP(3) = %d, want 40", tmpl.BaseXP(3))
	}
	if tmpl.BaseXP(1) != 10 {
		t.Errorf("unlisted level should keep default: BaseXP(1) = %d", tmpl.BaseXP(1))
	}

	// Existing id replaced.
	tmpl, err = c.GetTemplate("dishes")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Title != "Do ALL the dishes" {
		t.Errorf("builtin not replaced: %q", tmpl.Title)
	}
}

func TestLoadFileRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"missing title", "[[template]]\nid = \"x\"\n"},
		{"bad level key", "[[template]]\nid = \"x\"\ntitle = \"X\"\n[template.base_xp]\n\"two\" = 20\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if err := New().LoadFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
