package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"comlinepm/internal/app"
	"comlinepm/internal/types"
)

type addOptions struct {
	Local bool
}

func newAddCommand() *cobra.Command {
	opts := addOptions{}
	cmd := &cobra.Command{
		Use:   "add <dependency>",
		Short: "Add a dependency to the package manifest",
		Long: "Add a dependency to the package manifest.\n\n" +
			"Remote dependencies are written as [registry/]name[@requirement].\n" +
			"With --local the argument is a path to another package.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Local, "local", false, "Treat the dependency as a local package path")
	return cmd
}

func runAdd(ctx context.Context, identifier string, opts addOptions) error {
	service, err := newAppService(nil)
	if err != nil {
		return err
	}
	result, err := service.AddDependency(ctx, app.AddDependencyRequest{
		PackageRoot: packagePath(),
		Identifier:  identifier,
		Local:       opts.Local,
	})
	if err != nil {
		return err
	}
	verb := "added"
	if result.Replaced {
		verb = "updated"
	}
	fmt.Printf("%s dependency: %s\n", verb, describeDependency(result.Dependency))
	return nil
}

func describeDependency(dep types.Dependency) string {
	if dep.IsLocal() {
		return fmt.Sprintf("%s (%s)", dep.ID, dep.Path)
	}
	out := dep.Name
	if dep.Registry != "" {
		out = dep.Registry + "/" + out
	}
	if dep.Requirement != "" {
		out += "@" + dep.Requirement
	}
	return out
}
