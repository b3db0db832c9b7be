package cli

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"comlinepm/internal/telemetry"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "COMLINEPM"

const tracingFlushTimeout = 5 * time.Second

// shutdownTracing is replaced once a tracer provider is installed.
var shutdownTracing = func(context.Context) error { return nil }

type RootConfig struct {
	ConfigFile  string
	LogLevel    string
	PackagePath string
}

func Execute() {
	root := newRootCommand()
	err := root.Execute()
	flushTracing()
	if err != nil {
		log.Error().Msg(err.Error())
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "comlinepm",
		Short:         "Package manager for comline packages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			return setupTracing(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	cmd.PersistentFlags().StringVar(&cfg.PackagePath, "path", ".", "Package root directory")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("path", cmd.PersistentFlags().Lookup("path"))

	cmd.AddCommand(newNewCommand())
	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newRegistryCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setConfigDefaults(viper.GetViper())

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("comlinepm")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/comlinepm")
	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse config file").
			WithCause(err)
	}
	return nil
}

func setupTracing(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Endpoint:       viper.GetString("telemetry.otlp_endpoint"),
		ServiceVersion: version,
	})
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to set up tracing").
			WithCause(err)
	}
	shutdownTracing = shutdown
	return nil
}

func flushTracing() {
	ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}
	shutdownTracing = func(context.Context) error { return nil }
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// codedError is implemented by the typed domain errors.
type codedError interface {
	Code() errbuilder.ErrCode
}

func exitCodeForError(err error) int {
	code := errbuilder.CodeOf(err)
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	switch code {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}
