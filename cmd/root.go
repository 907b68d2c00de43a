package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/telemetry"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/goclaw/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile    string
	verbose    bool
	agentFlag  string
	msgFlag    string
	sessFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "GoClaw — standalone AI agent runtime",
	Long:  "GoClaw: a single-binary agent loop with tool execution, session persistence, and memory consolidation, driven from the command line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $AGENT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	})

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive or one-shot chat with an agent",
		RunE:  runChat,
	}
	chatCmd.Flags().StringVar(&agentFlag, "agent", config.DefaultAgentID, "agent ID to resolve from config")
	chatCmd.Flags().StringVarP(&msgFlag, "message", "m", "", "send one message and print the reply (non-interactive)")
	chatCmd.Flags().StringVar(&sessFlag, "session", "", "session key override (default: agent:<agent>:cli:direct:local)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd())
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without traces", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	agentName := agentFlag
	if agentName == "" {
		agentName = cfg.ResolveDefaultAgentID()
	}

	sessionKey := sessFlag
	if sessionKey == "" {
		sessionKey = sessions.BuildSessionKey(agentName, "cli", sessions.PeerDirect, "local")
	}

	runStandaloneMode(cfg, agentName, msgFlag, sessionKey)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goclaw %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("AGENT_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
