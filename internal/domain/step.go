package domain

import "fmt"

// Step - позиция в фиксированном цикле обработки триггеров
type Step int

const (
	StepCommentToAI Step = iota
	StepQuestionToAI
	StepCommentToUser
	StepQuestionToUser
)

// InitialStep - состояние новой комнаты
const InitialStep = StepCommentToAI

var stepNames = [...]string{
	StepCommentToAI:    "COMMENT_TO_AI",
	StepQuestionToAI:   "QUESTION_TO_AI",
	StepCommentToUser:  "COMMENT_TO_USER",
	StepQuestionToUser: "QUESTION_TO_USER",
}

// Steps возвращает цикл в порядке обхода
func Steps() []Step {
	return []Step{StepCommentToAI, StepQuestionToAI, StepCommentToUser, StepQuestionToUser}
}

func (s Step) Valid() bool {
	return s >= StepCommentToAI && s <= StepQuestionToUser
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Next - ровно одна позиция вперед по циклу
func (s Step) Next() Step {
	switch s {
	case StepCommentToAI:
		return StepQuestionToAI
	case StepQuestionToAI:
		return StepCommentToUser
	case StepCommentToUser:
		return StepQuestionToUser
	case StepQuestionToUser:
		return StepCommentToAI
	default:
		return InitialStep
	}
}

func (s Step) Kind() EngagementKind {
	switch s {
	case StepQuestionToAI, StepQuestionToUser:
		return KindQAndA
	default:
		return KindComment
	}
}

// TargetsAI - шаг отвечает на реплику в ветке, открытой ИИ
func (s Step) TargetsAI() bool {
	return s == StepCommentToAI || s == StepQuestionToAI
}

// StepFor выводит шаг триггера из вида общения и автора сообщения, на которое отвечаем
func StepFor(kind EngagementKind, parentIsAI bool) Step {
	switch {
	case kind == KindQAndA && parentIsAI:
		return StepQuestionToAI
	case kind == KindQAndA:
		return StepQuestionToUser
	case parentIsAI:
		return StepCommentToAI
	default:
		return StepCommentToUser
	}
}

func ParseStep(s string) (Step, error) {
	for i, name := range stepNames {
		if name == s {
			return Step(i), nil
		}
	}
	return InitialStep, fmt.Errorf("unknown step %q", s)
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	parsed, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
