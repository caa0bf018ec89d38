package models

import "time"

// CardType classifies a lesson card
type CardType string

const (
	CardObjective       CardType = "objective"
	CardMaterial        CardType = "material"
	CardSection         CardType = "section"
	CardActivity        CardType = "activity"
	CardTopicBackground CardType = "topic_background"
	CardCustom          CardType = "custom"
)

// Valid reports whether t is a known card type
func (t CardType) Valid() bool {
	switch t {
	case CardObjective, CardMaterial, CardSection, CardActivity, CardTopicBackground, CardCustom:
		return true
	}
	return false
}

// CardAttachment is a file linked from a card
type CardAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// LessonCard is one step of a presentation. Content variants are additive:
// OriginalContent keeps the teacher's text once an alternate has been generated.
type LessonCard struct {
	ID          string           `json:"id"`
	Type        CardType         `json:"type"`
	Title       string           `json:"title"`
	Content     string           `json:"content"`
	Duration    string           `json:"duration,omitempty"`
	SectionID   string           `json:"section_id,omitempty"`
	Attachments []CardAttachment `json:"attachments"`

	OriginalContent       string `json:"original_content,omitempty"`
	StudentFriendly       bool   `json:"student_friendly,omitempty"`
	DifferentiatedContent string `json:"differentiated_content,omitempty"`
	IsDifferentiated      bool   `json:"is_differentiated,omitempty"`
	ExtensionActivity     string `json:"extension_activity,omitempty"`
}

// LessonPresentation is a lesson being stepped through live in a session
type LessonPresentation struct {
	ID               string       `json:"id"`
	LessonID         string       `json:"lesson_id"`
	SessionCode      string       `json:"session_code"`
	Cards            []LessonCard `json:"cards"`
	CurrentCardIndex int          `json:"current_card_index"`
	Active           bool         `json:"active"`
	Revision         int64        `json:"revision"`
	CardsRevision    int64        `json:"cards_revision"`
	CreatedAt        time.Time    `json:"created_at"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
}

// ValidIndex reports whether i addresses a card
func (p *LessonPresentation) ValidIndex(i int) bool {
	return i >= 0 && i < len(p.Cards)
}

// CurrentCard returns the card at CurrentCardIndex, or nil when out of range
func (p *LessonPresentation) CurrentCard() *LessonCard {
	if !p.ValidIndex(p.CurrentCardIndex) {
		return nil
	}
	return &p.Cards[p.CurrentCardIndex]
}

// State returns the feed projection of the presentation
func (p *LessonPresentation) State() PresentationState {
	return PresentationState{
		ID:               p.ID,
		SessionCode:      p.SessionCode,
		CurrentCardIndex: p.CurrentCardIndex,
		Active:           p.Active,
		Revision:         p.Revision,
		CardsRevision:    p.CardsRevision,
	}
}

// PresentationState is what changes while a presentation runs. Cards are not
// carried; CardsRevision moves whenever the card list is edited, telling
// followers to read the cards again.
type PresentationState struct {
	ID               string `json:"id"`
	SessionCode      string `json:"session_code"`
	CurrentCardIndex int    `json:"current_card_index"`
	Active           bool   `json:"active"`
	Revision         int64  `json:"revision"`
	CardsRevision    int64  `json:"cards_revision"`
}

func (s PresentationState) TableName() Table { return TablePresentations }

// FilterKey is the presentation id; students follow one presentation
func (s PresentationState) FilterKey() string { return s.ID }

// NewerThan reports whether s supersedes other
func (s PresentationState) NewerThan(other PresentationState) bool {
	return s.Revision > other.Revision
}
