package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0x6d61/astra/internal/config"
	"github.com/0x6d61/astra/internal/journal"
	"github.com/0x6d61/astra/internal/render"
)

const journalTime = "2006-01-02 15:04:05"

func newJournalCmd(settings *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review the activity journal",
		Long: `Journal reads the SQLite activity log written by "astra console --journal".
The journal is an audit trail only; it is never used to restore a session.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List journal entries, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")
			return runJournalList(cmd, settings, journal.Filter{SessionID: session, Kind: kind, Limit: limit})
		},
	}
	list.Flags().String("session", "", "Only entries of this session ID")
	list.Flags().String("kind", "", "Only entries of this kind (login, logout, scan.submit, upload, upload.failed, chat, action)")
	list.Flags().Int("limit", 0, "Keep only the most recent N entries")

	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Summarise journaled sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalSessions(cmd, settings)
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, _ := cmd.Flags().GetDuration("older-than")
			return runJournalPrune(cmd, settings, age)
		},
	}
	prune.Flags().Duration("older-than", 30*24*time.Hour, "Maximum entry age to keep")

	cmd.AddCommand(list, sessions, prune)
	return cmd
}

func openJournal(settings *viper.Viper) (*journal.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig(settings)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Journal == "" {
		return nil, nil, errors.New("journal path is required (use --journal)")
	}
	store, err := journal.NewSQLiteStore(cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal %q: %w", cfg.Journal, err)
	}
	return store, cfg, nil
}

func runJournalList(cmd *cobra.Command, settings *viper.Viper, f journal.Filter) error {
	store, cfg, err := openJournal(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), f)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if strings.EqualFold(cfg.Format, "json") {
		if entries == nil {
			entries = []*journal.Entry{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries.")
		return nil
	}
	data := [][]string{{"Time", "Session", "Kind", "Detail"}}
	for _, e := range entries {
		data = append(data, []string{
			e.At.Local().Format(journalTime),
			shortID(e.SessionID),
			e.Kind,
			string(e.Detail),
		})
	}
	t, err := render.Table(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, t)
	return nil
}

func runJournalSessions(cmd *cobra.Command, settings *viper.Viper) error {
	store, cfg, err := openJournal(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	sums, err := store.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if strings.EqualFold(cfg.Format, "json") {
		if sums == nil {
			sums = []*journal.SessionSummary{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	}

	if len(sums) == 0 {
		fmt.Fprintln(out, "No journaled sessions.")
		return nil
	}
	data := [][]string{{"Session", "User", "Entries", "First", "Last"}}
	for _, s := range sums {
		data = append(data, []string{
			s.SessionID,
			s.User,
			strconv.Itoa(s.Entries),
			s.First.Local().Format(journalTime),
			s.Last.Local().Format(journalTime),
		})
	}
	t, err := render.Table(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, t)
	return nil
}

func runJournalPrune(cmd *cobra.Command, settings *viper.Viper, age time.Duration) error {
	if age <= 0 {
		return fmt.Errorf("invalid --older-than: %s", age)
	}
	store, _, err := openJournal(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), age)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries.\n", n)
	return nil
}

// shortID trims a UUID to its first group for table display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
