package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/pipeline"
)

func applyUpdate(t *testing.T, m WatchModel, u pipeline.Update) WatchModel {
	t.Helper()
	next, _ := m.Update(MsgPipelineUpdate{Update: u, OK: true})
	model, ok := next.(WatchModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model
}

func sectionsOf(ids ...string) []models.Section {
	var out []models.Section
	for _, id := range ids {
		out = append(out, models.Section{SectionID: id, Title: "Section " + id, Status: models.SectionWaiting})
	}
	return out
}

func TestWatchModelTracksPhase(t *testing.T) {
	m := NewWatchModel("q", nil)
	m = applyUpdate(t, m, pipeline.Update{Kind: pipeline.UpdatePhase, Phase: models.PhaseOutlineGenerating})
	if m.Phase != models.PhaseOutlineGenerating {
		t.Errorf("phase = %s", m.Phase)
	}
}

func TestWatchModelExpansionSurvivesSectionUpdates(t *testing.T) {
	m := NewWatchModel("q", nil)
	m = applyUpdate(t, m, pipeline.Update{Kind: pipeline.UpdateSections, Sections: sectionsOf("a", "b")})

	// Expand the first section.
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(WatchModel)
	if !m.expanded["a"] {
		t.Fatal("section a not expanded")
	}

	// A fresh merge result must not collapse it.
	updated := sectionsOf("a", "b")
	updated[0].Status = models.SectionComplete
	m = applyUpdate(t, m, pipeline.Update{Kind: pipeline.UpdateSections, Sections: updated})
	if !m.expanded["a"] {
		t.Error("expansion state lost on section update")
	}
	if m.Sections[0].Status != models.SectionComplete {
		t.Error("section update not applied")
	}
}

func TestWatchModelContentReplacesWholesale(t *testing.T) {
	m := NewWatchModel("q", nil)
	m = applyUpdate(t, m, pipeline.Update{Kind: pipeline.UpdateContent, Content: models.ContentSnapshot{Markdown: "# v1"}})
	m = applyUpdate(t, m, pipeline.Update{Kind: pipeline.UpdateContent, Content: models.ContentSnapshot{Markdown: "# v2"}})
	if m.Content.Markdown != "# v2" {
		t.Errorf("content = %q", m.Content.Markdown)
	}
}

func TestWatchModelDoneMarksComplete(t *testing.T) {
	m := NewWatchModel("q", nil)
	m = applyUpdate(t, m, pipeline.Update{
		Kind:    pipeline.UpdateDone,
		Phase:   models.PhaseComplete,
		Content: models.ContentSnapshot{Markdown: "final", IsComplete: true},
	})
	if m.Phase != models.PhaseComplete {
		t.Errorf("phase = %s", m.Phase)
	}
	if m.Content.Markdown != "final" {
		t.Errorf("content = %q", m.Content.Markdown)
	}
}
