package app

import "fils-quiz-bot/internal/domain"

// Recommend scores answers against the quiz scoring table and returns the winning catalog item.
// Every item starts at zero; each answer adds the weight deltas of its rule. The highest score
// wins and ties go to the item declared first in the catalog. Answers without a rule contribute
// nothing, and any number of answers is accepted.
func Recommend(quiz domain.Quiz, answers []domain.Answer) domain.CatalogItem {
	if len(quiz.Catalog) == 0 {
		return domain.CatalogItem{}
	}
	scores := Score(quiz, answers)

	best := 0
	for i := 1; i < len(quiz.Catalog); i++ {
		// strict comparison keeps the earlier item on ties
		if scores[quiz.Catalog[i].ID] > scores[quiz.Catalog[best].ID] {
			best = i
		}
	}
	return quiz.Catalog[best]
}

// Score returns the accumulated score of every catalog item for answers.
func Score(quiz domain.Quiz, answers []domain.Answer) map[string]int {
	scores := make(map[string]int, len(quiz.Catalog))
	for _, item := range quiz.Catalog {
		scores[item.ID] = 0
	}

	rules := make(map[domain.Answer]map[string]int, len(quiz.Rules))
	for _, rule := range quiz.Rules {
		rules[domain.Answer{QuestionID: rule.Question, Option: rule.Option}] = rule.Weights
	}

	for _, answer := range answers {
		for itemID, delta := range rules[answer] {
			if _, known := scores[itemID]; known {
				scores[itemID] += delta
			}
		}
	}
	return scores
}
