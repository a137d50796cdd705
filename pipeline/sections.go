package pipeline

import "github.com/hyperknow/hyperknow/models"

// SectionTracker reconciles section-progress responses into a stable local
// view. The outline initializes the view exactly once; after that, updates are
// merged by section id so held entries are never deleted and never reordered.
type SectionTracker struct {
	initialized bool
	sections    []models.Section
	complete    bool
}

// NewSectionTracker returns an empty tracker.
func NewSectionTracker() *SectionTracker {
	return &SectionTracker{}
}

// Sections returns a copy of the current view, in stable outline order.
func (t *SectionTracker) Sections() []models.Section {
	out := make([]models.Section, len(t.sections))
	copy(out, t.sections)
	return out
}

// IsComplete reports whether the backend has marked all sections done.
func (t *SectionTracker) IsComplete() bool {
	return t.complete
}

// Apply folds one progress response into the view and reports whether the view
// changed. The first response carrying an outline seeds the view with every
// outline entry in waiting state; later outlines are ignored so a backend
// re-send cannot reset observed progress. Section updates replace the matching
// held entry wholesale, leave untouched entries as they are, and drop updates
// for ids the outline never named.
func (t *SectionTracker) Apply(progress models.SectionProgress) bool {
	changed := false

	if !t.initialized && progress.Outline != nil {
		t.initialized = true
		t.sections = make([]models.Section, 0, len(progress.Outline.Sections))
		for _, s := range progress.Outline.Sections {
			if s.Status == "" {
				s.Status = models.SectionWaiting
			}
			t.sections = append(t.sections, s)
		}
		changed = true
	}

	if len(progress.Sections) > 0 {
		if len(t.sections) == 0 {
			// No outline seen yet; adopt the incoming list as the view.
			t.sections = make([]models.Section, len(progress.Sections))
			copy(t.sections, progress.Sections)
			changed = true
		} else {
			incoming := make(map[string]models.Section, len(progress.Sections))
			for _, s := range progress.Sections {
				incoming[s.SectionID] = s
			}
			for i, held := range t.sections {
				upd, ok := incoming[held.SectionID]
				if !ok {
					continue
				}
				next := merged(held, upd)
				if !sameSection(held, next) {
					t.sections[i] = next
					changed = true
				}
			}
		}
	}

	if progress.IsComplete && !t.complete {
		t.complete = true
		changed = true
	}
	return changed
}

// merged replaces a held entry with its update, keeping held fields the update
// omitted (updates often carry only the id and a new status).
func merged(held, upd models.Section) models.Section {
	out := upd
	if out.Title == "" {
		out.Title = held.Title
	}
	if len(out.LearningGoals) == 0 {
		out.LearningGoals = held.LearningGoals
	}
	return out
}

func sameSection(a, b models.Section) bool {
	if a.SectionID != b.SectionID || a.Title != b.Title || a.Status != b.Status {
		return false
	}
	if len(a.LearningGoals) != len(b.LearningGoals) {
		return false
	}
	for i := range a.LearningGoals {
		if a.LearningGoals[i] != b.LearningGoals[i] {
			return false
		}
	}
	return true
}
