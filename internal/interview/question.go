package interview

import (
	"fmt"

	apperrors "symptom-interview/pkg/errors"
)

// QuestionType is the wire tag of a question shape.
type QuestionType string

const (
	QuestionSingle        QuestionType = "single"
	QuestionGroupSingle   QuestionType = "group_single"
	QuestionGroupMultiple QuestionType = "group_multiple"
)

type QuestionItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Question is one of SingleQuestion, GroupSingleQuestion or GroupMultipleQuestion.
// The set is closed: only this package can add variants.
type Question interface {
	Text() string
	Type() QuestionType
	Items() []QuestionItem
	question()
}

// SingleQuestion asks about exactly one symptom.
type SingleQuestion struct {
	Prompt string
	Item   QuestionItem
}

// GroupSingleQuestion asks the patient to pick one of several symptoms.
type GroupSingleQuestion struct {
	Prompt  string
	Options []QuestionItem
}

// GroupMultipleQuestion lets the patient answer any number of symptoms before continuing.
type GroupMultipleQuestion struct {
	Prompt  string
	Options []QuestionItem
}

func (q SingleQuestion) Text() string          { return q.Prompt }
func (q SingleQuestion) Type() QuestionType    { return QuestionSingle }
func (q SingleQuestion) Items() []QuestionItem { return []QuestionItem{q.Item} }
func (SingleQuestion) question()               {}

func (q GroupSingleQuestion) Text() string          { return q.Prompt }
func (q GroupSingleQuestion) Type() QuestionType    { return QuestionGroupSingle }
func (q GroupSingleQuestion) Items() []QuestionItem { return cloneItems(q.Options) }
func (GroupSingleQuestion) question()               {}

func (q GroupMultipleQuestion) Text() string          { return q.Prompt }
func (q GroupMultipleQuestion) Type() QuestionType    { return QuestionGroupMultiple }
func (q GroupMultipleQuestion) Items() []QuestionItem { return cloneItems(q.Options) }
func (GroupMultipleQuestion) question()               {}

func cloneItems(items []QuestionItem) []QuestionItem {
	out := make([]QuestionItem, len(items))
	copy(out, items)
	return out
}

// NewQuestion builds the variant named by typ. An empty text yields a nil
// question, meaning the interview is over. Unknown shapes and item lists that
// do not fit the shape are protocol errors.
func NewQuestion(text string, typ QuestionType, items []QuestionItem) (Question, error) {
	if text == "" {
		return nil, nil
	}
	switch typ {
	case QuestionSingle:
		if len(items) != 1 {
			return nil, apperrors.NewProtocolError(fmt.Sprintf("single question carries %d items, want 1", len(items)), nil)
		}
		return SingleQuestion{Prompt: text, Item: items[0]}, nil
	case QuestionGroupSingle:
		if len(items) == 0 {
			return nil, apperrors.NewProtocolError("group_single question has no items", nil)
		}
		return GroupSingleQuestion{Prompt: text, Options: cloneItems(items)}, nil
	case QuestionGroupMultiple:
		if len(items) == 0 {
			return nil, apperrors.NewProtocolError("group_multiple question has no items", nil)
		}
		return GroupMultipleQuestion{Prompt: text, Options: cloneItems(items)}, nil
	default:
		return nil, apperrors.NewProtocolError(fmt.Sprintf("unknown question type %q", typ), nil)
	}
}

func hasItem(q Question, symptomID string) bool {
	for _, it := range q.Items() {
		if it.ID == symptomID {
			return true
		}
	}
	return false
}

// Action is a user reply to the presented question. Variants: Answer, Toggle,
// Continue, SkipGroup, SkipRemaining.
type Action interface {
	action()
}

// Answer replies to a single question, or picks one item of a group_single question.
type Answer struct {
	SymptomID string
	Choice    Choice
}

// Toggle sets the choice for one item of a group_multiple question without advancing.
type Toggle struct {
	SymptomID string
	Choice    Choice
}

// Continue advances past a group_multiple question.
type Continue struct{}

// SkipGroup is "none of these apply" on a group_single question.
type SkipGroup struct{}

// SkipRemaining ends the interview immediately.
type SkipRemaining struct{}

func (Answer) action()        {}
func (Toggle) action()        {}
func (Continue) action()      {}
func (SkipGroup) action()     {}
func (SkipRemaining) action() {}
