package cli

import (
	"errors"
	"fmt"

	"fils-quiz-bot/internal/config"
	"fils-quiz-bot/internal/content"
	"fils-quiz-bot/internal/domain"
	"github.com/spf13/cobra"
)

// NewValidateCmd checks quiz content without starting the bot.
func NewValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [content.yaml]",
		Short: "Validate quiz content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				path = cfg.Quiz.ContentPath
			}
			quiz, err := loadContent(path)
			out := cmd.OutOrStdout()
			if err != nil {
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					for _, problem := range verr.Problems {
						fmt.Fprintln(out, "-", problem)
					}
				}
				return err
			}
			fmt.Fprintf(out, "quiz %q is valid: %d questions, %d catalog items, %d scoring rules\n",
				quiz.ID, len(quiz.Questions), len(quiz.Catalog), len(quiz.Rules))
			return nil
		},
	}
}

// loadContent reads path, or returns the built-in quiz when path is empty.
func loadContent(path string) (domain.Quiz, error) {
	if path == "" {
		return content.Default(), nil
	}
	return content.LoadFile(path)
}
