package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/observability"
)

// QuestionPick is a randomly selected question. AllAnswered is set when the user has
// already answered every matching question and repeats begin.
type QuestionPick struct {
	Question    catalog.TriviaQuestion
	AllAnswered bool
}

// AnswerResult is returned from SubmitAnswer.
type AnswerResult struct {
	Correct       bool
	CorrectAnswer int
	Explanation   string
	GemsEarned    int
}

// RandomQuestion picks a question matching filter, preferring ones the user has not answered.
func (s *Service) RandomQuestion(ctx context.Context, userID string, filter catalog.TriviaFilter) (QuestionPick, error) {
	answered, err := s.repo.AnsweredQuestionIDs(ctx, userID)
	if err != nil {
		return QuestionPick{}, err
	}
	q, allAnswered, ok := s.pickQuestion(filter, answered)
	if !ok {
		return QuestionPick{}, ErrQuestionNotFound
	}
	return QuestionPick{Question: q, AllAnswered: allAnswered}, nil
}

// pickQuestion samples uniformly from matching unanswered questions, falling back to
// all matching questions.
func (s *Service) pickQuestion(filter catalog.TriviaFilter, answered []string) (catalog.TriviaQuestion, bool, bool) {
	candidates := catalog.Questions(filter)
	if len(candidates) == 0 {
		return catalog.TriviaQuestion{}, false, false
	}

	seen := toSet(answered)
	fresh := make([]catalog.TriviaQuestion, 0, len(candidates))
	for _, q := range candidates {
		if _, ok := seen[q.ID]; !ok {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) > 0 {
		return fresh[s.sampler.IntN(len(fresh))], false, true
	}
	return candidates[s.sampler.IntN(len(candidates))], true, true
}

// SubmitAnswer grades a standalone trivia answer. The stored answer for the question is
// replaced by this one.
func (s *Service) SubmitAnswer(ctx context.Context, userID, questionID string, answer int) (AnswerResult, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return AnswerResult{}, fmt.Errorf("%w: question_id is required", ErrValidation)
	}
	question, ok := catalog.LookupQuestion(questionID)
	if !ok {
		return AnswerResult{}, ErrQuestionNotFound
	}
	if err := validateOption(question, answer); err != nil {
		return AnswerResult{}, err
	}

	now, _ := s.now()
	correct := answer == question.CorrectOption
	gems := 0
	if correct {
		gems = question.Gems
	}

	if err := s.repo.SaveTriviaAnswer(ctx, TriviaAnswer{
		UserID:     userID,
		QuestionID: question.ID,
		Answer:     answer,
		Correct:    correct,
		Gems:       gems,
		AnsweredAt: now,
	}); err != nil {
		return AnswerResult{}, err
	}
	observability.RecordTriviaAnswer("direct", correct)
	observability.RecordRewards(0, 0, gems, 0)
	observability.RecordEngagement(now)

	return AnswerResult{
		Correct:       correct,
		CorrectAnswer: question.CorrectOption,
		Explanation:   question.Explanation,
		GemsEarned:    gems,
	}, nil
}

func validateOption(q catalog.TriviaQuestion, answer int) error {
	if answer < 0 || answer >= len(q.Options) {
		return fmt.Errorf("%w: answer must be an option index between 0 and %d", ErrValidation, len(q.Options)-1)
	}
	return nil
}
