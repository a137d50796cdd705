package pipeline

import (
	"testing"

	"github.com/hyperknow/hyperknow/models"
)

func outlineOf(ids ...string) *models.Outline {
	o := &models.Outline{}
	for _, id := range ids {
		o.Sections = append(o.Sections, models.Section{SectionID: id, Title: "Section " + id})
	}
	return o
}

func TestSectionTrackerOutlineInitializesWithWaiting(t *testing.T) {
	tr := NewSectionTracker()
	if changed := tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b", "c")}); !changed {
		t.Fatal("outline did not change the view")
	}
	got := tr.Sections()
	if len(got) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(got))
	}
	for _, s := range got {
		if s.Status != models.SectionWaiting {
			t.Errorf("section %s initialized with status %q", s.SectionID, s.Status)
		}
	}
}

func TestSectionTrackerSecondOutlineIsIgnored(t *testing.T) {
	tr := NewSectionTracker()
	tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b")})
	tr.Apply(models.SectionProgress{Sections: []models.Section{{SectionID: "a", Status: models.SectionComplete}}})

	// A re-sent outline must not reset observed progress.
	tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b")})
	if got := tr.Sections()[0].Status; got != models.SectionComplete {
		t.Errorf("outline re-send reset section a to %q", got)
	}
}

func TestSectionTrackerMergePreservesOrderAndUntouched(t *testing.T) {
	tr := NewSectionTracker()
	tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b", "c")})

	// Update arrives out of order and touches only b.
	tr.Apply(models.SectionProgress{Sections: []models.Section{
		{SectionID: "b", Status: models.SectionTextComplete},
	}})

	got := tr.Sections()
	wantOrder := []string{"a", "b", "c"}
	for i, id := range wantOrder {
		if got[i].SectionID != id {
			t.Fatalf("order changed: position %d is %s, want %s", i, got[i].SectionID, id)
		}
	}
	if got[0].Status != models.SectionWaiting || got[2].Status != models.SectionWaiting {
		t.Error("untouched sections were modified")
	}
	if got[1].Status != models.SectionTextComplete {
		t.Errorf("section b status %q, want text_complete", got[1].Status)
	}
	if got[1].Title != "Section b" {
		t.Errorf("merge dropped held title, got %q", got[1].Title)
	}
}

func TestSectionTrackerNeverDeletes(t *testing.T) {
	tr := NewSectionTracker()
	tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b", "c")})

	// An update listing only one section must not shrink the view.
	tr.Apply(models.SectionProgress{Sections: []models.Section{
		{SectionID: "c", Status: models.SectionComplete},
	}})
	if got := len(tr.Sections()); got != 3 {
		t.Fatalf("view shrank to %d sections", got)
	}
}

func TestSectionTrackerDropsUnknownIDs(t *testing.T) {
	tr := NewSectionTracker()
	tr.Apply(models.SectionProgress{Outline: outlineOf("a", "b")})

	tr.Apply(models.SectionProgress{Sections: []models.Section{
		{SectionID: "zz", Status: models.SectionComplete},
	}})
	for _, s := range tr.Sections() {
		if s.SectionID == "zz" {
			t.Fatal("unknown section id entered the view")
		}
	}
	if len(tr.Sections()) != 2 {
		t.Fatalf("view size changed: %d", len(tr.Sections()))
	}
}

func TestSectionTrackerAdoptsSectionsWithoutOutline(t *testing.T) {
	tr := NewSectionTracker()
	changed := tr.Apply(models.SectionProgress{Sections: []models.Section{
		{SectionID: "a", Title: "A", Status: models.SectionWaiting},
		{SectionID: "b", Title: "B", Status: models.SectionTextComplete},
	}})
	if !changed || len(tr.Sections()) != 2 {
		t.Fatalf("sections-first response not adopted: changed=%v, len=%d", changed, len(tr.Sections()))
	}
}

func TestSectionTrackerUnchangedResponseReportsNoChange(t *testing.T) {
	tr := NewSectionTracker()
	update := models.SectionProgress{Sections: []models.Section{
		{SectionID: "a", Title: "Section a", Status: models.SectionWaiting},
	}}
	tr.Apply(models.SectionProgress{Outline: outlineOf("a")})
	if changed := tr.Apply(update); changed {
		t.Error("identical update reported a change")
	}
}

func TestSectionTrackerCompletion(t *testing.T) {
	tr := NewSectionTracker()
	tr.Apply(models.SectionProgress{Outline: outlineOf("a")})
	if tr.IsComplete() {
		t.Fatal("complete before backend said so")
	}
	if changed := tr.Apply(models.SectionProgress{IsComplete: true}); !changed {
		t.Error("completion flag did not register as a change")
	}
	if !tr.IsComplete() {
		t.Error("completion flag lost")
	}
}
