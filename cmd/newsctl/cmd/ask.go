package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"news-orchestrator/internal/usecase"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Long: `Answer a single question in a throwaway session.

Examples:
  newsctl ask "latest renewable energy news"
  newsctl ask "articles written by Jane Doe" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().Bool("json", false, "output as JSON")
}

type askOutput struct {
	Answer     string              `json:"answer"`
	References []askReference `json:"references"`
	Route      string              `json:"route"`
	Pipeline   string              `json:"pipeline"`
	Outcome    string              `json:"outcome"`
	Fallbacks  []string            `json:"fallbacks,omitempty"`
}

type askReference struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

func toAskOutput(a *usecase.Answer) askOutput {
	refs := make([]askReference, 0, len(a.References))
	for _, r := range a.References {
		refs = append(refs, askReference{ArticleID: r.ArticleID, Title: r.Title, URL: r.URL})
	}
	return askOutput{
		Answer:     a.Text,
		References: refs,
		Route:      string(a.Route),
		Pipeline:   string(a.Pipeline),
		Outcome:    string(a.Outcome),
		Fallbacks:  a.Fallbacks,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	app, closeBackends, err := wire(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackends()

	sess := app.Sessions.Start()
	defer func() { _ = app.Sessions.End(sess.ID) }()

	answer, err := app.AnswerUsecase.Answer(cmd.Context(), strings.Join(args, " "), sess)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !jsonOutput {
		_, err := fmt.Fprintln(out, usecase.RenderAnswer(answer))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(toAskOutput(answer))
}
