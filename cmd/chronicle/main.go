package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"chronicle/internal/app"
	"chronicle/internal/chronicle"
	"chronicle/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a ChronicleApp. The caller must
// defer a.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.ChronicleApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewChronicleApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Conversation record store",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Index:     %s\n", cfg.Index.Type)
		fmt.Printf("Vault:     %s\n", cfg.Vault.Type)
		fmt.Printf("AutoRepair: %v\n", cfg.Engine.AutoRepair)
		return nil
	},
}

// setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Setup")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}
		pass, err := readPassphrase("Passphrase for new private key: ")
		if err != nil {
			return err
		}
		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListConversations")
		if err != nil {
			return err
		}
		defer a.Close()

		convs, err := a.Engine().ListConversations()
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convs {
			fmt.Printf("%s  %s  %-8s  %3d msgs  %s\n",
				c.ID,
				c.CreatedAt.Format("2006-01-02 15:04:05"),
				c.Status,
				c.Metadata.MessageCount,
				c.Title,
			)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show CONVERSATION_ID",
	Short: "Show a conversation with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ShowConversation")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Engine().GetConversation(args[0])
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("no such conversation %q", args[0])
		}

		fmt.Printf("%s (%s)\n", c.Title, c.ID)
		fmt.Printf("Created: %s  Status: %s\n\n", c.CreatedAt.Format("2006-01-02 15:04:05"), c.Status)

		msgs, err := a.Engine().GetMessages(c.ID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s  %s\n", m.Sender, m.CreatedAt.Format("15:04:05"), m.Content)
			if len(m.CodeChanges) > 0 {
				fmt.Printf("  %d code change(s)\n", len(m.CodeChanges))
			}
			if err := a.Engine().VerifySnapshots(m.ID); err != nil {
				fmt.Printf("  snapshot verification: %v\n", err)
			}
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete CONVERSATION_ID",
	Short: "Delete a conversation and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteConversation")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().DeleteConversation(args[0]); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		fmt.Printf("Deleted conversation %s\n", args[0])
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search conversations and messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regex, _ := cmd.Flags().GetBool("regex")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("Search")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Engine().Search(args[0], chronicle.SearchOptions{Regex: regex, Limit: limit})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, r := range results {
			loc := r.ConversationID
			if r.MessageID != "" {
				loc += "/" + r.MessageID
			}
			fmt.Printf("%s  %s\n", loc, r.Snippet)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify store integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("VerifyDataIntegrity")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine().VerifyDataIntegrity()
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d item(s): %d corrupted, %d repaired\n",
			report.ItemsChecked, len(report.CorruptedItems), len(report.RepairedItems))
		for _, item := range report.CorruptedItems {
			fmt.Printf("  %s %s  severity=%s  fields=%v\n", item.Kind, item.ID, item.Severity, item.Fields)
		}
		for _, e := range report.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		if len(report.CorruptedItems) > 0 {
			return fmt.Errorf("%d corrupted item(s) remain", len(report.CorruptedItems))
		}
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate all store files to the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		skipBackup, _ := cmd.Flags().GetBool("skip-backup")
		stopOnError, _ := cmd.Flags().GetBool("stop-on-error")

		a, err := newApp("MigrateStore")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine().MigrateStore(chronicle.MigrateOptions{BackupFirst: !skipBackup, StopOnError: stopOnError})
		if report != nil {
			fmt.Printf("Scanned %d file(s): %d migrated, %d failed\n", report.Scanned, report.Migrated, report.Failed)
			for _, e := range report.Errors {
				fmt.Printf("  error: %s\n", e)
			}
		}
		return err
	},
}

// backup commands
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		conversation, _ := cmd.Flags().GetString("conversation")
		sinceStr, _ := cmd.Flags().GetString("since")

		a, err := newApp("CreateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := createBackup(a, conversation, sinceStr, description)
		if err != nil {
			return err
		}
		fmt.Printf("Backup %s created (%s): %d conversation(s), %d message(s), %d snapshot(s)\n",
			info.ID, info.Type, info.Conversations, info.Messages, info.Snapshots)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Engine().ListBackups()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %-13s  %s  %s\n",
				info.ID, info.Type, info.CreatedAt.Format("2006-01-02 15:04:05"), info.Description)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID",
	Short: "Restore the store from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipSafety, _ := cmd.Flags().GetBool("skip-safety-backup")

		a, err := newApp("RestoreFromBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().RestoreFromBackup(args[0], chronicle.RestoreOptions{PreRestoreBackup: !skipSafety}); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored from backup %s\n", args[0])
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE [CONVERSATION_ID...]",
	Short: "Export conversations to a file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()

		if err := a.Export(f, args[1:], encrypt); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Exported to %s\n", args[0])
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import conversations from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypted, _ := cmd.Flags().GetBool("encrypted")

		a, err := newApp("Import")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		passphrase := ""
		if encrypted {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}
		count, err := a.Import(f, passphrase)
		fmt.Printf("Imported %d item(s)\n", count)
		return err
	},
}

// reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RebuildIndex")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().RebuildIndex(); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		fmt.Println("Index rebuilt.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	backupCmd.AddCommand(backupCreateCmd)
	backupCreateCmd.Flags().StringP("description", "d", "", "Backup description")
	backupCreateCmd.Flags().StringP("conversation", "c", "", "Back up a single conversation")
	backupCreateCmd.Flags().String("since", "", "Incremental backup of files written since this RFC 3339 time")
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().Bool("skip-safety-backup", false, "Do not create a safety backup before restoring")

	searchCmd.Flags().Bool("regex", false, "Interpret the query as a regular expression")
	searchCmd.Flags().IntP("limit", "n", 50, "Maximum number of results")

	migrateCmd.Flags().Bool("skip-backup", false, "Do not create a full backup before migrating")
	migrateCmd.Flags().Bool("stop-on-error", false, "Abort at the first failed file")

	exportCmd.Flags().Bool("encrypt", false, "Encrypt the export with the configured public key")
	importCmd.Flags().Bool("encrypted", false, "The import file is encrypted")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reindexCmd)
}

// createBackup dispatches on the mutually exclusive backup flags.
func createBackup(a *app.ChronicleApp, conversation, sinceStr, description string) (*chronicle.BackupInfo, error) {
	switch {
	case conversation != "" && sinceStr != "":
		return nil, fmt.Errorf("--conversation and --since are mutually exclusive")
	case conversation != "":
		return a.Engine().CreateConversationBackup(conversation, description)
	case sinceStr != "":
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return nil, fmt.Errorf("parsing --since: %w", err)
		}
		return a.Engine().CreateIncrementalBackup(since, description)
	default:
		return a.Engine().CreateFullBackup(description)
	}
}
