// Package plan implements the ContentProvider port on a YAML reading-plan
// file.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Shortener shortens outbound links. Optional; nil disables shortening.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) string
}

// planFile is the on-disk shape of a reading plan.
type planFile struct {
	Name    string  `yaml:"name"`
	Entries []entry `yaml:"entries"`
}

// entry is one day's reading. Date-keyed entries take precedence; Day is a
// day-of-year fallback for plans that repeat every year.
type entry struct {
	Date    string `yaml:"date,omitempty"` // YYYY-MM-DD
	Day     int    `yaml:"day,omitempty"`  // 1-366
	Passage string `yaml:"passage"`
	URL     string `yaml:"url,omitempty"`
	Body    string `yaml:"body,omitempty"`
}

// Provider serves reading-plan entries by date. The plan file is parsed once
// at construction; a malformed file fails fast.
type Provider struct {
	name      string
	byDate    map[string]entry
	byDay     map[int]entry
	shortener Shortener
	logger    *slog.Logger
}

// Load reads and parses the plan file at path. shortener may be nil.
func Load(path string, shortener Shortener, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file %q: %w", path, err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan file %q: %w", path, err)
	}

	p := &Provider{
		name:      pf.Name,
		byDate:    make(map[string]entry, len(pf.Entries)),
		byDay:     make(map[int]entry),
		shortener: shortener,
		logger:    logger,
	}

	for i, e := range pf.Entries {
		switch {
		case e.Date != "":
			if _, err := time.Parse("2006-01-02", e.Date); err != nil {
				return nil, fmt.Errorf("plan file %q entry %d: bad date %q: %w", path, i, e.Date, err)
			}
			p.byDate[e.Date] = e
		case e.Day >= 1 && e.Day <= 366:
			p.byDay[e.Day] = e
		default:
			return nil, fmt.Errorf("plan file %q entry %d: needs a date or a day between 1 and 366", path, i)
		}
	}

	logger.Info("reading plan loaded", "path", path, "name", pf.Name, "entries", len(pf.Entries))
	return p, nil
}

// ContentForDate returns the formatted message for the given date, or
// ok=false when the plan has no entry for it.
func (p *Provider) ContentForDate(ctx context.Context, date time.Time) (string, bool, error) {
	e, ok := p.byDate[date.Format("2006-01-02")]
	if !ok {
		e, ok = p.byDay[date.YearDay()]
	}
	if !ok {
		return "", false, nil
	}
	return p.format(ctx, e), true, nil
}

// format renders one entry as the outgoing message text.
func (p *Provider) format(ctx context.Context, e entry) string {
	var b strings.Builder

	if p.name != "" {
		b.WriteString(p.name)
		b.WriteString("\n\n")
	}
	b.WriteString("*")
	b.WriteString(e.Passage)
	b.WriteString("*")

	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}

	if e.URL != "" {
		url := e.URL
		if p.shortener != nil {
			url = p.shortener.Shorten(ctx, url)
		}
		b.WriteString("\n\n")
		b.WriteString(url)
	}

	return b.String()
}
