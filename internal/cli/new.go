package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"comlinepm/internal/app"
)

type newOptions struct {
	Force bool
}

func newNewCommand() *cobra.Command {
	opts := newOptions{}
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a package with a minimal manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing package manifest")
	return cmd
}

func runNew(ctx context.Context, name string, opts newOptions) error {
	service, err := newAppService(nil)
	if err != nil {
		return err
	}
	result, err := service.CreatePackage(ctx, app.CreatePackageRequest{
		Parent: packagePath(),
		Name:   name,
		Force:  opts.Force,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created package: %s\n", result.Root)
	return nil
}
