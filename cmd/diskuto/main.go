package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"diskuto/internal/app"
	"diskuto/internal/applog"
	"diskuto/internal/authz"
	"diskuto/internal/config"
	"diskuto/internal/crypto"
	"diskuto/internal/encryption"
	"diskuto/internal/httpapi"
	"diskuto/internal/ingest"
	"diskuto/internal/store"
	"diskuto/internal/store/blob"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file at the default or overridden location.
func loadConfig(configPathFlag string) (*config.Config, error) {
	path := configPathFlag
	if path == "" {
		defaults, err := app.GetDefaults()
		if err != nil {
			return nil, fmt.Errorf("getting defaults: %w", err)
		}
		path = defaults["config_path"]
	}
	return config.ReadFromFile(path)
}

// openStore opens the database at cfg's configured path. It does not run
// migrations.
func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

var rootCmd = &cobra.Command{
	Use:   "diskuto",
	Short: "A self-hostable diskuto server",
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the config file and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		s, err := store.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer s.Close()
		if err := s.MigrateUp(); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		fmt.Printf("Initialized diskuto at %s\n", cfg.DataDir)
		fmt.Printf("Config written to %s\n", defaults["config_path"])
		return nil
	},
}

var dbUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the database schema to the latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.MigrateUp(); err != nil {
			return fmt.Errorf("upgrading schema: %w", err)
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup [destination]",
	Short: "Back up the database to a snapshot file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		dest := fmt.Sprintf("diskuto-backup-%s.sqlite3", time.Now().UTC().Format("20060102-150405"))
		if len(args) > 0 {
			dest = args[0]
		}

		ctx := context.Background()
		if !encrypt {
			if err := s.BackupTo(ctx, dest); err != nil {
				return fmt.Errorf("backing up database: %w", err)
			}
			fmt.Printf("Backup written to %s\n", dest)
			return nil
		}

		tmpDest := dest + ".tmp"
		if err := s.BackupTo(ctx, tmpDest); err != nil {
			return fmt.Errorf("backing up database: %w", err)
		}
		defer os.Remove(tmpDest)

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("building encryptor: %w", err)
		}
		if !enc.IsConfigured() {
			fmt.Print("No backup key configured. Enter a new passphrase: ")
			passphrase, err := readPassphrase()
			if err != nil {
				return err
			}
			if err := enc.Setup(passphrase); err != nil {
				return fmt.Errorf("setting up encryption key: %w", err)
			}
		}

		in, err := os.Open(tmpDest)
		if err != nil {
			return fmt.Errorf("opening snapshot: %w", err)
		}
		defer in.Close()

		out, err := os.Create(dest + ".age")
		if err != nil {
			return fmt.Errorf("creating encrypted backup: %w", err)
		}
		defer out.Close()

		if err := enc.Encrypt(in, out); err != nil {
			return fmt.Errorf("encrypting backup: %w", err)
		}
		fmt.Printf("Encrypted backup written to %s.age\n", dest)
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore <source>",
	Short: "Restore the database from a snapshot file, replacing the live database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		decrypt, _ := cmd.Flags().GetBool("decrypt")
		force, _ := cmd.Flags().GetBool("force")
		source := args[0]

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		if !force {
			if _, err := os.Stat(cfg.Database.Path); err == nil {
				return fmt.Errorf("%s already exists; pass --force to overwrite it", cfg.Database.Path)
			}
		}

		snapshot := source
		if decrypt {
			enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
			if err != nil {
				return fmt.Errorf("building encryptor: %w", err)
			}
			fmt.Print("Enter the backup passphrase: ")
			passphrase, err := readPassphrase()
			if err != nil {
				return err
			}
			decCtx, err := enc.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking backup key: %w", err)
			}

			in, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("opening encrypted backup: %w", err)
			}
			defer in.Close()

			snapshot = source + ".restore.tmp"
			out, err := os.Create(snapshot)
			if err != nil {
				return fmt.Errorf("creating decrypted snapshot: %w", err)
			}
			defer os.Remove(snapshot)
			defer out.Close()

			if err := decCtx.Decrypt(in, out); err != nil {
				return fmt.Errorf("decrypting backup: %w", err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("finalizing decrypted snapshot: %w", err)
			}
		}

		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
		if err := copyFile(snapshot, cfg.Database.Path); err != nil {
			return fmt.Errorf("installing restored database: %w", err)
		}

		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening restored database: %w", err)
		}
		defer s.Close()
		if err := s.MigrateUp(); err != nil {
			return fmt.Errorf("migrating restored database: %w", err)
		}

		fmt.Printf("Restored database to %s\n", cfg.Database.Path)
		return nil
	},
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return out.Close()
}

func readPassphrase() (string, error) {
	fmt.Println()
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the allow-list of known users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <uid>",
	Short: "Admit a user, directly or with a quota override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		onHomepage, _ := cmd.Flags().GetBool("on-homepage")
		quota, _ := cmd.Flags().GetInt64("quota")
		notes, _ := cmd.Flags().GetString("notes")

		userID, err := crypto.ParseUserID(args[0])
		if err != nil {
			return fmt.Errorf("parsing user id: %w", err)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ku := store.KnownUser{UserID: userID, OnHomepage: onHomepage, Notes: notes}
		if quota > 0 {
			ku.QuotaBytes = &quota
		}

		err = s.WithWriteTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
			return store.AddKnownUser(ctx, tx, ku)
		})
		if err != nil {
			return fmt.Errorf("adding known user: %w", err)
		}

		fmt.Printf("Added known user %s\n", userID.String())
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known users",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		users, err := store.Reader(context.Background(), s, func(ctx context.Context, q store.Queryer) ([]store.KnownUser, error) {
			return store.ListKnownUsers(ctx, q)
		})
		if err != nil {
			return fmt.Errorf("listing known users: %w", err)
		}

		for _, u := range users {
			quota := "unlimited"
			if u.QuotaBytes != nil {
				quota = strconv.FormatInt(*u.QuotaBytes, 10)
			}
			fmt.Printf("%s  homepage=%-5v  quota=%-10s  %s\n", u.UserID.String(), u.OnHomepage, quota, u.Notes)
		}
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <uid>",
	Short: "Remove a user from the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		userID, err := crypto.ParseUserID(args[0])
		if err != nil {
			return fmt.Errorf("parsing user id: %w", err)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.WithWriteTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
			return store.RemoveKnownUser(ctx, tx, userID)
		})
		if err != nil {
			return fmt.Errorf("removing known user: %w", err)
		}

		fmt.Printf("Removed known user %s\n", userID.String())
		return nil
	},
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage stored items",
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <uid> <signature>",
	Short: "Delete a single item and reclaim any now-orphaned attachment blobs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		userID, err := crypto.ParseUserID(args[0])
		if err != nil {
			return fmt.Errorf("parsing user id: %w", err)
		}
		sig, err := crypto.ParseSignature(args[1])
		if err != nil {
			return fmt.Errorf("parsing signature: %w", err)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		blobs, err := blob.NewFromConfig(ctx, cfg.BlobStore)
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}

		svc := &ingest.Service{Store: s, Blobs: blobs, Config: cfg}
		if err := svc.DeleteItem(ctx, userID, sig); err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}

		fmt.Printf("Deleted item %s/%s\n", userID.String(), sig.String())
		return nil
	},
}

var userUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report storage usage per known user",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		limit, _ := cmd.Flags().GetInt("limit")
		hex, _ := cmd.Flags().GetBool("hex")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := store.Reader(context.Background(), s, func(ctx context.Context, q store.Queryer) ([]store.UsageRow, error) {
			return store.UsageByUser(ctx, q, limit)
		})
		if err != nil {
			return fmt.Errorf("reporting usage: %w", err)
		}

		for _, row := range rows {
			id := row.UserID.String()
			if hex {
				id = fmt.Sprintf("%x", row.UserID.Bytes())
			}
			fmt.Printf("%s  %-20s  items=%-6d  attachments=%-6d  bytes=%d\n",
				id, row.DisplayName, row.Items, row.Attachments, row.TotalBytes)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		bindFlag, _ := cmd.Flags().GetString("bind")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if bindFlag != "" {
			cfg.Bind = bindFlag
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.CheckMigrations(); err != nil {
			return fmt.Errorf("checking schema: %w", err)
		}

		ctx := context.Background()
		blobs, err := blob.NewFromConfig(ctx, cfg.BlobStore)
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}

		log, logFile, err := applog.New(cfg.LogDir)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()

		svc := &ingest.Service{
			Store:  s,
			Blobs:  blobs,
			Policy: authz.Policy{DefaultQuotaBytes: cfg.DefaultQuotaBytes},
			Config: cfg,
		}

		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		if fsBlobs, ok := blobs.(*blob.FilesystemStore); ok {
			sweeper := ingest.NewSweeper(fsBlobs, 1*time.Hour, log)
			go sweeper.Run(sweepCtx, 15*time.Minute)
		}

		srv := &http.Server{
			Addr:    cfg.Bind,
			Handler: httpapi.NewRouter(svc, log),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", "addr", cfg.Bind)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-sigCh:
			log.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbUpgradeCmd)
	dbUpgradeCmd.Flags().String("config", "", "Path to the config file")
	dbCmd.AddCommand(dbBackupCmd)
	dbBackupCmd.Flags().String("config", "", "Path to the config file")
	dbBackupCmd.Flags().Bool("encrypt", false, "Encrypt the backup with the configured age key")
	dbCmd.AddCommand(dbRestoreCmd)
	dbRestoreCmd.Flags().String("config", "", "Path to the config file")
	dbRestoreCmd.Flags().Bool("decrypt", false, "Decrypt an age-encrypted backup before installing it")
	dbRestoreCmd.Flags().Bool("force", false, "Overwrite an existing database file")

	userAddCmd.Flags().String("config", "", "Path to the config file")
	userAddCmd.Flags().Bool("on-homepage", false, "Include this user's items on the public homepage")
	userAddCmd.Flags().Int64("quota", 0, "Byte quota for this user (0 = unlimited)")
	userAddCmd.Flags().String("notes", "", "Administrator notes")
	userCmd.AddCommand(userAddCmd)

	userListCmd.Flags().String("config", "", "Path to the config file")
	userCmd.AddCommand(userListCmd)

	userRemoveCmd.Flags().String("config", "", "Path to the config file")
	userCmd.AddCommand(userRemoveCmd)

	userUsageCmd.Flags().String("config", "", "Path to the config file")
	userUsageCmd.Flags().Int("limit", 50, "Maximum number of users to report")
	userUsageCmd.Flags().Bool("hex", false, "Print user ids as hex instead of base58")
	userCmd.AddCommand(userUsageCmd)

	itemDeleteCmd.Flags().String("config", "", "Path to the config file")
	itemCmd.AddCommand(itemDeleteCmd)

	serveCmd.Flags().String("config", "", "Path to the config file")
	serveCmd.Flags().String("bind", "", "Address to listen on, overriding the config file")

	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(serveCmd)
}
