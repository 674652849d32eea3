package domain

import "fmt"

// Validate checks that quiz content can be served: the catalog has at least two unique items,
// questions are numbered 1..N with options 1..K, and every declared (question, option) pair has a
// scoring rule referencing only known catalog items with non-negative weights.
func (q Quiz) Validate() error {
	verr := &ValidationError{QuizID: q.ID}
	add := func(format string, args ...any) {
		verr.Problems = append(verr.Problems, fmt.Sprintf(format, args...))
	}

	if q.ID == "" {
		add("quiz id is empty")
	}
	if len(q.Catalog) < 2 {
		add("catalog needs at least 2 items, got %d", len(q.Catalog))
	}
	items := make(map[string]struct{}, len(q.Catalog))
	for _, item := range q.Catalog {
		if item.ID == "" {
			add("catalog item with empty id")
			continue
		}
		if _, dup := items[item.ID]; dup {
			add("duplicate catalog item %q", item.ID)
		}
		items[item.ID] = struct{}{}
	}

	if len(q.Questions) == 0 {
		add("quiz has no questions")
	}
	declared := make(map[Answer]struct{})
	for i, question := range q.Questions {
		if question.ID != i+1 {
			add("question at position %d has id %d, want %d", i+1, question.ID, i+1)
		}
		if len(question.Options) == 0 {
			add("question %d has no options", question.ID)
		}
		for j, opt := range question.Options {
			if opt.Index != j+1 {
				add("question %d option at position %d has index %d, want %d", question.ID, j+1, opt.Index, j+1)
			}
			declared[Answer{QuestionID: question.ID, Option: opt.Index}] = struct{}{}
		}
	}

	covered := make(map[Answer]struct{}, len(q.Rules))
	for _, rule := range q.Rules {
		key := Answer{QuestionID: rule.Question, Option: rule.Option}
		if _, ok := declared[key]; !ok {
			add("rule for undeclared %s", key)
			continue
		}
		if _, dup := covered[key]; dup {
			add("duplicate rule for %s", key)
		}
		covered[key] = struct{}{}
		for itemID, weight := range rule.Weights {
			if _, ok := items[itemID]; !ok {
				add("rule for %s references unknown item %q", key, itemID)
			}
			if weight < 0 {
				add("rule for %s has negative weight %d for %q", key, weight, itemID)
			}
		}
	}
	for _, question := range q.Questions {
		for _, opt := range question.Options {
			key := Answer{QuestionID: question.ID, Option: opt.Index}
			if _, ok := covered[key]; !ok {
				add("missing scoring rule for %s", key)
			}
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}
