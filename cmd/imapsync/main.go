package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexei-niemeyer/imapsync/internal/imaputil"
	"github.com/alexei-niemeyer/imapsync/internal/syncer"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
	date    = ""
)

// connectFn is swapped out in tests.
var connectFn = imaputil.Connect

func main() {
	rootCmd := &cobra.Command{
		Use:   "imapsync",
		Short: "One-way IMAP mailbox replication",
		RunE: func(cmd *cobra.Command, args []string) error {
			// default to help
			return cmd.Help()
		},
	}

	var showVersion bool
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Printf("imapsync %s", version)
			if commit != "" {
				fmt.Printf(" (%s)", commit)
			}
			if date != "" {
				fmt.Printf(" built %s", date)
			}
			fmt.Println()
			os.Exit(0)
		}
	}

	rootCmd.AddCommand(newSyncCmd(), newImportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type syncOptions struct {
	srcHost       string
	srcPort       int
	srcUser       string
	srcPass       string
	srcPassPrompt bool

	dstHost       string
	dstPort       int
	dstUser       string
	dstPass       string
	dstPassPrompt bool

	startTLS   bool
	include    string
	exclude    string
	dryRun     bool
	debug      bool
	logFile    string
	reportFile string
	noTUI      bool
	verbose    bool
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate folders and messages from a source IMAP account to a destination",
		RunE:  runSync,
	}
	addSyncFlags(cmd)
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a local MBOX file into a destination IMAP folder",
		RunE:  runImport,
	}
	addImportFlags(cmd)
	return cmd
}

func addSyncFlags(cmd *cobra.Command) {
	o := &syncOptions{}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = false
	cmd.Flags().StringVar(&o.srcHost, "src-host", "", "Source IMAP host")
	cmd.Flags().IntVar(&o.srcPort, "src-port", 993, "Source IMAP port")
	cmd.Flags().StringVar(&o.srcUser, "src-user", "", "Source IMAP username")
	cmd.Flags().StringVar(&o.srcPass, "src-pass", "", "Source IMAP password")
	cmd.Flags().BoolVar(&o.srcPassPrompt, "src-pass-prompt", false, "Prompt for source IMAP password (no echo)")

	cmd.Flags().StringVar(&o.dstHost, "dst-host", "", "Destination IMAP host")
	cmd.Flags().IntVar(&o.dstPort, "dst-port", 993, "Destination IMAP port")
	cmd.Flags().StringVar(&o.dstUser, "dst-user", "", "Destination IMAP username")
	cmd.Flags().StringVar(&o.dstPass, "dst-pass", "", "Destination IMAP password")
	cmd.Flags().BoolVar(&o.dstPassPrompt, "dst-pass-prompt", false, "Prompt for destination IMAP password (no echo)")

	cmd.Flags().BoolVar(&o.startTLS, "starttls", false, "Use STARTTLS instead of implicit TLS (certificates are always verified)")
	cmd.Flags().StringVar(&o.include, "include", "", "Regex of source folders to include")
	cmd.Flags().StringVar(&o.exclude, "exclude", "", "Regex of source folders to exclude")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Compute and report all decisions without creating or appending anything")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&o.logFile, "log-file", "", "Also write logs to this file")
	cmd.Flags().StringVar(&o.reportFile, "report-file", "", "Write the run outcome as JSON to this file")
	cmd.Flags().BoolVar(&o.noTUI, "no-tui", false, "Disable the progress UI, log plainly instead")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Log every per-message decision")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(context.WithValue(cmd.Context(), syncKey{}, o))
		return nil
	}
}

type syncKey struct{}
type importKey struct{}

func runSync(cmd *cobra.Command, args []string) error {
	o := cmd.Context().Value(syncKey{}).(*syncOptions)

	if o.srcPassPrompt && o.srcPass == "" {
		p, err := promptPassword("Source password: ")
		if err != nil {
			return err
		}
		o.srcPass = p
	}
	if o.dstPassPrompt && o.dstPass == "" {
		p, err := promptPassword("Destination password: ")
		if err != nil {
			return err
		}
		o.dstPass = p
	}
	if o.srcHost == "" || o.srcUser == "" || o.srcPass == "" || o.dstHost == "" || o.dstUser == "" || o.dstPass == "" {
		return fmt.Errorf("missing required flags: --src-host, --src-user, --src-pass, --dst-host, --dst-user, --dst-pass")
	}

	var includeRe, excludeRe *regexp.Regexp
	var err error
	if o.include != "" {
		includeRe, err = regexp.Compile(o.include)
		if err != nil {
			return fmt.Errorf("invalid --include regex: %w", err)
		}
	}
	if o.exclude != "" {
		excludeRe, err = regexp.Compile(o.exclude)
		if err != nil {
			return fmt.Errorf("invalid --exclude regex: %w", err)
		}
	}

	logger, logF, err := setupLogging(o.debug, o.logFile)
	if err != nil {
		return err
	}
	if logF != nil {
		defer logF.Close()
	}

	logger.WithField("host", o.srcHost).Info("Connecting to source")
	src, err := connectFn(o.srcHost, o.srcPort, o.srcUser, o.srcPass, o.startTLS)
	if err != nil {
		return fmt.Errorf("connect source %s: %w", o.srcHost, err)
	}
	defer src.Logout()

	logger.WithField("host", o.dstHost).Info("Connecting to destination")
	dst, err := connectFn(o.dstHost, o.dstPort, o.dstUser, o.dstPass, o.startTLS)
	if err != nil {
		return fmt.Errorf("connect destination %s: %w", o.dstHost, err)
	}
	defer dst.Logout()

	worker := syncer.New(src, dst, logger, syncer.Options{
		DryRun:  o.dryRun,
		Quiet:   !o.verbose,
		Include: includeRe,
		Exclude: excludeRe,
	})

	useTUI := !o.noTUI && term.IsTerminal(int(os.Stdout.Fd()))
	var outcome *syncer.Outcome
	if useTUI {
		// Logs would clobber the UI; keep the file writer if any.
		if logF != nil {
			logger.SetOutput(logF)
		} else {
			logger.SetOutput(io.Discard)
		}
		outcome = runTUI(worker, func() {
			// Force-close connections to unblock ongoing I/O.
			_ = src.Logout()
			_ = dst.Logout()
		})
		logger.SetOutput(os.Stdout)
	} else {
		outcome = worker.Run()
	}

	if outcome == nil {
		fmt.Println("Aborted.")
		return nil
	}
	printOutcome(outcome)
	if err := outcome.Save(o.reportFile); err != nil {
		logger.WithError(err).Error("Writing report file failed")
	}
	return nil
}

type importOptions struct {
	mboxPath   string
	dstMailbox string

	dstHost       string
	dstPort       int
	dstUser       string
	dstPass       string
	dstPassPrompt bool

	startTLS bool
	dryRun   bool
	debug    bool
	logFile  string
}

func addImportFlags(cmd *cobra.Command) {
	o := &importOptions{}
	cmd.SilenceUsage = true
	cmd.Flags().StringVar(&o.mboxPath, "mbox", "", "Path to the MBOX file to import")
	cmd.Flags().StringVar(&o.dstMailbox, "dst-mailbox", "INBOX", "Destination folder name")

	cmd.Flags().StringVar(&o.dstHost, "dst-host", "", "Destination IMAP host")
	cmd.Flags().IntVar(&o.dstPort, "dst-port", 993, "Destination IMAP port")
	cmd.Flags().StringVar(&o.dstUser, "dst-user", "", "Destination IMAP username")
	cmd.Flags().StringVar(&o.dstPass, "dst-pass", "", "Destination IMAP password")
	cmd.Flags().BoolVar(&o.dstPassPrompt, "dst-pass-prompt", false, "Prompt for destination IMAP password (no echo)")

	cmd.Flags().BoolVar(&o.startTLS, "starttls", false, "Use STARTTLS instead of implicit TLS (certificates are always verified)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Compute and report all decisions without creating or appending anything")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&o.logFile, "log-file", "", "Also write logs to this file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(context.WithValue(cmd.Context(), importKey{}, o))
		return nil
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	o := cmd.Context().Value(importKey{}).(*importOptions)

	if o.dstPassPrompt && o.dstPass == "" {
		p, err := promptPassword("Destination password: ")
		if err != nil {
			return err
		}
		o.dstPass = p
	}
	if o.mboxPath == "" || o.dstHost == "" || o.dstUser == "" || o.dstPass == "" {
		return fmt.Errorf("missing required flags: --mbox, --dst-host, --dst-user, --dst-pass")
	}

	logger, logF, err := setupLogging(o.debug, o.logFile)
	if err != nil {
		return err
	}
	if logF != nil {
		defer logF.Close()
	}

	f, err := os.Open(o.mboxPath)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	logger.WithField("host", o.dstHost).Info("Connecting to destination")
	dst, err := connectFn(o.dstHost, o.dstPort, o.dstUser, o.dstPass, o.startTLS)
	if err != nil {
		return fmt.Errorf("connect destination %s: %w", o.dstHost, err)
	}
	defer dst.Logout()

	outcome := syncer.ImportMbox(dst, logger, f, o.dstMailbox, syncer.Options{DryRun: o.dryRun})
	printOutcome(outcome)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// setupLogging builds the run logger: stdout, plus an optional file.
// The returned file is non-nil when a log file was opened.
func setupLogging(debug bool, logFile string) (*logrus.Logger, *os.File, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if logFile == "" {
		return logger, nil, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, f, nil
}

func printOutcome(out *syncer.Outcome) {
	fmt.Println("Done:", out.Summary())
	for _, f := range out.FolderFailures {
		fmt.Printf(" - folder %q (%s): %s\n", f.Folder, f.Stage, f.Error)
	}
	for _, f := range out.MessageFailures {
		fmt.Printf(" - message in %q (%s): %s\n", f.Folder, f.Stage, f.Error)
	}
}
