package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"comlinepm/internal/app"
	"comlinepm/internal/shared"
	"comlinepm/internal/telemetry"
	"comlinepm/internal/types"
)

func newRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Authenticate against and publish to package registries",
	}
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newMethodsCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newPublishCommand())
	return cmd
}

type loginOptions struct {
	Method   string
	Target   string
	Password string
	Expires  string
}

func newLoginCommand() *cobra.Command {
	opts := loginOptions{}
	cmd := &cobra.Command{
		Use:   "login <registry>",
		Short: "Log in to a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.Method, "method", "", "Authentication method (default: registry method, then ssh)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "User or organization to authenticate as")
	cmd.Flags().StringVar(&opts.Password, "password", "", "Token, passphrase or identity token for the method")
	cmd.Flags().StringVar(&opts.Expires, "expires", "", "Expiry of the given credential (RFC3339)")
	return cmd
}

func runLogin(ctx context.Context, registry string, opts loginOptions) error {
	expiresAt, err := credentialExpiry(opts.Expires)
	if err != nil {
		return err
	}
	service, err := newAppService(nil)
	if err != nil {
		return err
	}
	result, err := service.Login(ctx, app.LoginRequest{
		Registry:            registry,
		Method:              opts.Method,
		Target:              opts.Target,
		Credential:          types.Secret(opts.Password),
		CredentialExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}
	expiry := "no expiry"
	if !result.ExpiresAt.IsZero() {
		expiry = "expires " + result.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Printf("logged in to %s as %s via %s (%s)\n", result.Registry, result.Subject, result.Method, expiry)
	return nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <registry>",
		Short: "Drop the session for a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(nil)
			if err != nil {
				return err
			}
			fmt.Println(logoutMessage(service.Logout(cmd.Context(), args[0])))
			return nil
		},
	}
}

// logoutMessage reports whether a session was actually dropped. Sessions are
// held in memory only, so a logout in a fresh process finds nothing.
func logoutMessage(result app.LogoutResult) string {
	if result.Removed {
		return "logged out of " + result.Registry
	}
	return "no cached session for " + result.Registry + " (sessions are not persisted between runs)"
}

func credentialExpiry(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed := shared.ParseTimeFlexible(value)
	if parsed.IsZero() {
		return time.Time{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid --expires value " + value)
	}
	return parsed, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured registries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newAppService(nil)
			if err != nil {
				return err
			}
			registries, err := service.ListRegistries()
			if err != nil {
				return err
			}
			if len(registries) == 0 {
				fmt.Println("no registries configured")
				return nil
			}
			for _, target := range registries {
				fmt.Println(describeRegistry(target))
			}
			return nil
		},
	}
}

func describeRegistry(target types.RegistryTarget) string {
	method := target.Method
	if method == "" {
		method = "ssh"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", target.Name, target.URL, method, target.LoginTarget())
}

func newMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List authentication methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newAppService(nil)
			if err != nil {
				return err
			}
			for _, m := range service.Methods() {
				fmt.Printf("%s\t%s\n", m.Name, m.Description)
			}
			return nil
		},
	}
}

type publishOptions struct {
	Registries      string
	OutputDir       string
	Workers         int
	TimeoutSec      int
	MetricsTextfile string
}

func newPublishCommand() *cobra.Command {
	opts := publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish [registry...]",
		Short: "Build the package and publish it to registries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Registries, "registries", "", "Space-separated registry names")
	cmd.Flags().StringVar(&opts.OutputDir, "output", "", "Artifact directory (default <package>/target)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "Concurrent registry uploads")
	cmd.Flags().IntVar(&opts.TimeoutSec, "timeout", 0, "Overall publish timeout in seconds (0 = none)")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write publish metrics to this file")
	_ = viper.BindPFlag("publish.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("publish.timeout_sec", cmd.Flags().Lookup("timeout"))
	return cmd
}

func runPublish(ctx context.Context, cmd *cobra.Command, args []string, opts publishOptions) error {
	registries := registryNames(args, resolveStrings(cmd, strings.Fields(opts.Registries), "publish.registries", "registries"))
	var metrics *telemetry.PublishMetrics
	if opts.MetricsTextfile != "" {
		metrics = telemetry.NewPublishMetrics()
	}
	service, err := newAppService(metrics)
	if err != nil {
		return err
	}
	service.PublishOpts = app.PublishOptions{
		Workers: resolveInt(cmd, opts.Workers, "publish.workers", "workers"),
		Timeout: app.PublishDeadline(resolveInt(cmd, opts.TimeoutSec, "publish.timeout_sec", "timeout")),
	}

	built, err := buildPackage(ctx, service, resolveString(cmd, opts.OutputDir, "build.output", "output"))
	if err != nil {
		return err
	}
	fmt.Printf("publishing %s\n", frozenIdentity(built.Config))

	report, publishErr := service.Publish(ctx, built, registries)
	for _, result := range report.Results {
		if result.Err != nil {
			continue
		}
		fmt.Printf("published to %s: %s\n", result.Registry, result.Receipt.Location)
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(opts.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", opts.MetricsTextfile).Msg("failed to write publish metrics")
		}
	}
	if publishErr != nil {
		return publishErr
	}
	if len(registries) == 0 {
		fmt.Println("no registries given, nothing published")
	}
	return nil
}

// registryNames merges positional registry names with the --registries
// value or the configured publish.registries list.
func registryNames(args []string, configured []string) []string {
	names := append([]string{}, args...)
	for _, value := range configured {
		names = append(names, strings.Fields(value)...)
	}
	return names
}
