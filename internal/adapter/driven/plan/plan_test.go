package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const samplePlan = `name: Plano de Leitura
entries:
  - date: 2026-08-30
    passage: Salmos 23
    url: https://example.org/salmos-23
    body: |
      O Senhor é o meu pastor; nada me faltará.
  - day: 1
    passage: Gênesis 1-2
`

func mustDate(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", v)
	require.NoError(t, err)
	return d
}

func TestLoad_ParsesEntries(t *testing.T) {
	p, err := Load(writePlan(t, samplePlan), nil, nil)
	require.NoError(t, err)

	text, ok, err := p.ContentForDate(context.Background(), mustDate(t, "2026-08-30"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, text, "Plano de Leitura")
	assert.Contains(t, text, "*Salmos 23*")
	assert.Contains(t, text, "nada me faltará")
	assert.Contains(t, text, "https://example.org/salmos-23")
}

func TestContentForDate_DayOfYearFallback(t *testing.T) {
	p, err := Load(writePlan(t, samplePlan), nil, nil)
	require.NoError(t, err)

	// January 1st of any year hits the day-of-year entry.
	text, ok, err := p.ContentForDate(context.Background(), mustDate(t, "2027-01-01"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, text, "Gênesis 1-2")
}

func TestContentForDate_AbsentDate(t *testing.T) {
	p, err := Load(writePlan(t, samplePlan), nil, nil)
	require.NoError(t, err)

	_, ok, err := p.ContentForDate(context.Background(), mustDate(t, "2026-03-15"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_MalformedYAMLFailsFast(t *testing.T) {
	_, err := Load(writePlan(t, "entries: [not: {valid"), nil, nil)
	require.Error(t, err)
}

func TestLoad_BadDateFailsFast(t *testing.T) {
	_, err := Load(writePlan(t, "entries:\n  - date: 30/08/2026\n    passage: x\n"), nil, nil)
	require.Error(t, err)
}

func TestLoad_EntryWithoutDateOrDayFailsFast(t *testing.T) {
	_, err := Load(writePlan(t, "entries:\n  - passage: x\n"), nil, nil)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil)
	require.Error(t, err)
}

type fakeShortener struct{ out string }

func (f fakeShortener) Shorten(_ context.Context, _ string) string { return f.out }

func TestContentForDate_UsesShortener(t *testing.T) {
	p, err := Load(writePlan(t, samplePlan), fakeShortener{out: "https://sho.rt/x"}, nil)
	require.NoError(t, err)

	text, ok, err := p.ContentForDate(context.Background(), mustDate(t, "2026-08-30"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, text, "https://sho.rt/x")
	assert.NotContains(t, text, "https://example.org/salmos-23")
}
