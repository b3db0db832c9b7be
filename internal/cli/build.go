package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"comlinepm/internal/app"
	"comlinepm/internal/types"
)

type buildOptions struct {
	OutputDir string
}

func newBuildCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Freeze the manifest and build the package archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.OutputDir, "output", "", "Artifact directory (default <package>/target)")
	_ = viper.BindPFlag("build.output", cmd.Flags().Lookup("output"))
	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, opts buildOptions) error {
	service, err := newAppService(nil)
	if err != nil {
		return err
	}
	built, err := buildPackage(ctx, service, resolveString(cmd, opts.OutputDir, "build.output", "output"))
	if err != nil {
		return err
	}
	archive, _ := built.PrimaryArtifact()
	fmt.Printf("built %s: %s (%s)\n", frozenIdentity(built.Config), archive.Path, archive.Digest)
	return nil
}

func buildPackage(ctx context.Context, service app.Service, outputDir string) (types.Built, error) {
	bc, err := service.Build(ctx, app.BuildRequest{
		PackagePath: packagePath(),
		OutputDir:   outputDir,
	})
	if err != nil {
		return types.Built{}, err
	}
	return bc.(types.Built), nil
}

func frozenIdentity(config types.FrozenConfig) string {
	namespace, _ := config.Namespace()
	version, _ := config.Version()
	return namespace + "@" + version
}
