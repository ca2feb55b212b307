// Package catalog implements the read-only task template lookup. The full
// 700+ entry catalog ships with the apps; this core carries a built-in
// starter set and can load or override templates from a TOML file.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/chorequest/chorequest/internal/domain"
)

// DefaultBaseXP maps a difficulty level (1–5) to its base XP payout, used
// when a template does not override per-level values.
var DefaultBaseXP = map[int]int{
	1: 10,
	2: 20,
	3: 30,
	4: 45,
	5: 60,
}

// Catalog resolves task templates by id. Safe for concurrent reads.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]domain.TaskTemplate
}

// New creates a catalog seeded with the built-in templates.
func New() *Catalog {
	c := &Catalog{templates: make(map[string]domain.TaskTemplate)}
	for _, t := range builtinTemplates() {
		c.templates[t.ID] = t
	}
	return c
}

// GetTemplate implements domain.TemplateCatalog.
func (c *Catalog) GetTemplate(id string) (*domain.TaskTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[id]
	if !ok {
		return nil, domain.NotFoundf("template %q", id)
	}
	return &t, nil
}

// ListTemplates implements domain.TemplateCatalog.
func (c *Catalog) ListTemplates() []domain.TaskTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.TaskTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ─── TOML Loading ───────────────────────────────────────────────────────────

// tomlFile is the on-disk catalog format:
//
//	[[template]]
//	id = "dishes"
//	title = "Do the dishes"
//	category = "kitchen"
//	estimated_minutes = 20
//	[template.base_xp]
//	"2" = 25
type tomlFile struct {
	Templates []tomlTemplate `toml:"template"`
}

type tomlTemplate struct {
	ID               string         `toml:"id"`
	Title            string         `toml:"title"`
	Description      string         `toml:"description"`
	Category         string         `toml:"category"`
	EstimatedMinutes int            `toml:"estimated_minutes"`
	BaseXP           map[string]int `toml:"base_xp"`
}

// LoadFile merges templates from a TOML file into the catalog. Entries
// with an existing id replace the built-in version.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range f.Templates {
		if t.ID == "" || t.Title == "" {
			return fmt.Errorf("catalog template missing id or title")
		}
		byLevel := make(map[int]int, len(DefaultBaseXP))
		for lvl, xp := range DefaultBaseXP {
			byLevel[lvl] = xp
		}
		for lvl, xp := range t.BaseXP {
			var n int
			if _, err := fmt.Sscanf(lvl, "%d", &n); err != nil {
				return fmt.Errorf("catalog template %s: bad level %q", t.ID, lvl)
			}
			byLevel[n] = xp
		}
		c.templates[t.ID] = domain.TaskTemplate{
			ID:               t.ID,
			Title:            t.Title,
			Description:      t.Description,
			Category:         t.Category,
			BaseXPByLevel:    byLevel,
			EstimatedMinutes: t.EstimatedMinutes,
		}
	}
	return nil
}

// ─── Built-in Templates ─────────────────────────────────────────────────────

func builtinTemplates() []domain.TaskTemplate {
	mk := func(id, title, desc, category string, minutes int) domain.TaskTemplate {
		byLevel := make(map[int]int, len(DefaultBaseXP))
		for lvl, xp := range DefaultBaseXP {
			byLevel[lvl] = xp
		}
		return domain.TaskTemplate{
			ID:               id,
			Title:            title,
			Description:      desc,
			Category:         category,
			BaseXPByLevel:    byLevel,
			EstimatedMinutes: minutes,
		}
	}

	return []domain.TaskTemplate{
		mk("make-bed", "Make your bed", "Straighten sheets, fluff pillows", "bedroom", 5),
		mk("dishes", "Do the dishes", "Wash, dry, and put away all dishes", "kitchen", 20),
		mk("vacuum-living-room", "Vacuum the living room", "Including under the couch cushions", "living-room", 15),
		mk("take-out-trash", "Take out the trash", "All bins, and a fresh liner in each", "household", 10),
		mk("fold-laundry", "Fold and put away laundry", "One full basket, sorted by owner", "laundry", 25),
		mk("walk-dog", "Walk the dog", "At least 20 minutes around the block", "pets", 25),
		mk("water-plants", "Water the plants", "Indoor and porch plants", "garden", 10),
		mk("clean-bathroom-sink", "Clean the bathroom sink", "Sink, counter, and mirror", "bathroom", 15),
		mk("set-table", "Set the table for dinner", "Plates, cutlery, and glasses for everyone", "kitchen", 5),
		mk("rake-leaves", "Rake the leaves", "Front yard, bagged and ready for pickup", "garden", 40),
	}
}
