package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Phase represents the stages a generation run moves through. Transitions are
// monotonic: a run never moves back to an earlier phase.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSourceCollecting  Phase = "source_collecting"
	PhaseOutlineGenerating Phase = "outline_generating"
	PhaseSectionWriting    Phase = "section_writing"
	PhaseStreaming         Phase = "streaming_article"
	PhaseComplete          Phase = "complete"
)

// phaseRank orders phases for the monotonicity guard. Section writing and
// article streaming run concurrently, so they share a rank.
var phaseRank = map[Phase]int{
	PhaseIdle:              0,
	PhaseSourceCollecting:  1,
	PhaseOutlineGenerating: 2,
	PhaseSectionWriting:    3,
	PhaseStreaming:         3,
	PhaseComplete:          4,
}

// Rank returns the ordering position of p. Unknown phases rank below idle.
func (p Phase) Rank() int {
	if r, ok := phaseRank[p]; ok {
		return r
	}
	return -1
}

// SectionStatus represents the reported state of a single article section.
type SectionStatus string

const (
	SectionWaiting      SectionStatus = "waiting"
	SectionTextComplete SectionStatus = "text_complete"
	SectionComplete     SectionStatus = "complete"
)

// Job identifies one generation run on the backend. ConversationID is empty
// until the query has been submitted.
type Job struct {
	ConversationID string   `json:"conversationId,omitempty"`
	UserID         string   `json:"userId" validate:"required"`
	Query          string   `json:"query" validate:"required"`
	BookIDs        []string `json:"bookIds,omitempty"`
	WebSearch      bool     `json:"webSearch"`
	Comments       string   `json:"comments,omitempty"`
}

// Section is one entry of an article outline, carrying its current status.
type Section struct {
	SectionID     string        `json:"section_id" validate:"required"`
	Title         string        `json:"title,omitempty"`
	LearningGoals []string      `json:"learning_goals,omitempty"`
	Status        SectionStatus `json:"status" validate:"required,oneof=waiting text_complete complete"`
}

// Outline is the section skeleton delivered once, early in a run.
type Outline struct {
	Sections []Section `json:"sections" validate:"dive"`
}

// ContentSnapshot is one full view of the article text. Snapshots always
// replace the previous one wholesale; they are never appended to.
type ContentSnapshot struct {
	Markdown   string `json:"markdown"`
	IsComplete bool   `json:"isComplete"`
}

// SectionProgress is the reconciled section-level state of a run.
type SectionProgress struct {
	Outline    *Outline  `json:"outline,omitempty"`
	Sections   []Section `json:"sections"`
	IsComplete bool      `json:"isComplete"`
}

// Article is a completed generation recorded in local history.
type Article struct {
	ConversationID string    `json:"conversationId" validate:"required"`
	UserID         string    `json:"userId" validate:"required"`
	Topic          string    `json:"topic" validate:"required"`
	Markdown       string    `json:"markdown,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt"`
	ReadingTime    int       `json:"estimatedReadingTime,omitempty"`
	WordCount      int       `json:"wordCount,omitempty"`
	CharacterCount int       `json:"characterCount,omitempty"`
}

// global validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	if validate == nil {
		validate = validator.New()
	}
	err := validate.Struct(s)
	if err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, fmt.Sprintf("Validation failed on field '%s': rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("%s", strings.Join(errorMessages, "; "))
	}
	return nil
}
