package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/batuhan/mxcomposer/internal/app"
	"github.com/batuhan/mxcomposer/internal/config"
)

const AppName = "mxcomposer"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func Execute() error {
	return NewRootCmd(Version).Execute()
}

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Composer helpers for Matrix chats",
		Long:          "mxcomposer suggests @mentions, renders mention pills and fetches link previews.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewSuggestCmd(),
		NewMembersCmd(),
		NewRenderCmd(),
		NewPreviewCmd(),
	)
	return cmd
}

// loadApp builds the backends from the environment. Logs go to stderr at
// warn level unless MXCOMPOSER_LOG_LEVEL asks for more.
func loadApp(cmd *cobra.Command) (context.Context, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if level < zerolog.WarnLevel && os.Getenv("MXCOMPOSER_LOG_LEVEL") == "" {
		level = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger().Level(level)
	ctx := log.WithContext(cmd.Context())
	composer, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return ctx, composer, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func closeApp(cmd *cobra.Command, composer *app.App) {
	if err := composer.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
}
