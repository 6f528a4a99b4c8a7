package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"emailer/internal/hooks"
	"emailer/internal/types"
)

func newValidateCmd(a *app) *cobra.Command {
	var bucketID string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a hook declaration file",
		Long: `Validate the metadata of a bucket or collection before writing it.

The file holds the object data as YAML or JSON, with the hooks under the
"emailer" key:

  emailer:
    hooks:
      - template: "{id} was {action}d."
        recipients: ["ops@example.com", "/buckets/blog/groups/admins"]
        resource_name: record

Group recipients must live in --bucket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var metadata map[string]any
			if err := yaml.Unmarshal(raw, &metadata); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			if metadata == nil {
				metadata = map[string]any{}
			}
			if err := hooks.ValidateMetadata(types.Object(metadata), bucketID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: hooks are valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&bucketID, "bucket", "b", "", "bucket the object belongs to")
	return cmd
}
