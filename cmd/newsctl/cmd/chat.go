package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/session"
	"news-orchestrator/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation about the news corpus.

Follow-up questions reuse the previous answer's articles. Type exit, quit,
bye or happy to end the conversation.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeBackends, err := wire(ctx)
	if err != nil {
		return err
	}
	defer closeBackends()

	sess := app.Sessions.Start()
	defer func() { _ = app.Sessions.End(sess.ID) }()

	return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), app.AnswerUsecase, sess)
}

// runREPL answers one line at a time until an exit token, EOF or cancellation.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, answers usecase.AnswerQueryUsecase, sess *session.Session) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Ask a question about the news (type exit to quit).")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		answer, err := answers.Answer(ctx, query, sess)
		if err != nil {
			if errors.Is(err, domain.ErrTurnCancelled) || errors.Is(err, session.ErrSessionEnded) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(out, usecase.RenderAnswer(answer))
		fmt.Fprintln(out)
		if answer.Terminated {
			return nil
		}
	}
}
