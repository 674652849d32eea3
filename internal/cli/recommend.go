package cli

import (
	"fmt"
	"strconv"
	"strings"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/config"
	"fils-quiz-bot/internal/domain"
	"github.com/spf13/cobra"
)

// NewRecommendCmd scores a set of answers offline, handy when tuning the scoring table.
func NewRecommendCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "recommend <option>...",
		Short:   "Print the recommendation for the given answers",
		Example: "  quiz-bot recommend 1 1 3 1\n  quiz-bot recommend 2:3 4:1",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			quiz, err := loadContent(cfg.Quiz.ContentPath)
			if err != nil {
				return err
			}
			answers, err := parseAnswers(args)
			if err != nil {
				return err
			}

			item := app.Recommend(quiz, answers)
			scores := app.Score(quiz, answers)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", item.Title, item.ID)
			for _, candidate := range quiz.Catalog {
				fmt.Fprintf(out, "  %-10s %d\n", candidate.ID, scores[candidate.ID])
			}
			return nil
		},
	}
}

// parseAnswers accepts either bare options, taken as answers to questions 1..n in order, or
// explicit "question:option" pairs.
func parseAnswers(args []string) ([]domain.Answer, error) {
	answers := make([]domain.Answer, 0, len(args))
	for i, arg := range args {
		question, option := i+1, arg
		if q, o, ok := strings.Cut(arg, ":"); ok {
			n, err := strconv.Atoi(q)
			if err != nil {
				return nil, fmt.Errorf("bad question in %q", arg)
			}
			question, option = n, o
		}
		n, err := strconv.Atoi(option)
		if err != nil {
			return nil, fmt.Errorf("bad option in %q", arg)
		}
		answers = append(answers, domain.Answer{QuestionID: question, Option: n})
	}
	return answers, nil
}
