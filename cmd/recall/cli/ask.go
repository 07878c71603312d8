package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/store"
)

var (
	askSession string
	askK       int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about a recorded session",
	Long: `Rebuild the retrieval index for a stored session (the latest by default)
and answer a question from its summaries.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		s, vault, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		obs := newObserver(cmd.ErrOrStderr())
		defer obs.Close()

		cfg, res, err := loadConfig(vault, func(c *config.Config) {
			modelOverrides(cmd)(c)
			if cmd.Flags().Changed("k") {
				c.Retrieval.K = askK
			}
		})
		for _, w := range res.Warnings {
			obs.Log().Warn().Msg(w)
		}
		if err != nil {
			return err
		}

		sess, err := findSession(s, askSession)
		if err != nil {
			return err
		}
		records, err := s.ListRecords(sess.ID)
		if err != nil {
			return err
		}
		snap := session.NewSnapshot(sess.ID, records)

		stub := provider.NewStubProvider()
		embedder, err := newProvider(cfg, cfg.Embedding, vault.Get, stub)
		if err != nil {
			return err
		}
		chatter, err := newProvider(cfg, cfg.Chat.ModelConfig, vault.Get, stub)
		if err != nil {
			return err
		}

		r := &Runner{Observer: obs, Config: cfg, Embedder: embedder, Chatter: chatter}
		idx, err := r.Index(cmd.Context(), snap)
		if err != nil {
			return err
		}
		answer, err := r.Answer(cmd.Context(), idx, snap, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
	f := askCmd.Flags()
	f.StringVar(&askSession, "session", "", "Session ID (default latest)")
	f.IntVarP(&askK, "k", "k", 0, "Number of summaries to retrieve (default 3)")
	f.StringVarP(&providerName, "provider", "p", "", "Provider for embeddings and chat")
	f.StringVar(&embedModel, "embed-model", "", "Embedding model")
	f.StringVar(&chatModel, "chat-model", "", "Chat model")
}

func findSession(s store.Storage, id string) (*store.Session, error) {
	if id == "" {
		return s.LatestSession()
	}
	return s.GetSession(id)
}
