package main

import (
	"assemblycore/internal/core"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Print the fulfillment breakdown of a robot instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			status, err := a.service.InstanceStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <part|robot_instance> <id>",
		Short: "Archive the change history of a part or robot instance to S3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := core.EntityType(args[0])
			if entity != core.EntityPart && entity != core.EntityRobotInstance {
				return fmt.Errorf("unknown entity %q: want %s or %s", args[0], core.EntityPart, core.EntityRobotInstance)
			}
			// The memory blob store dies with this process, so an archive written
			// there could never be read back.
			if opts.cfg.Blob.Driver != "s3" {
				return fmt.Errorf("archive needs blob.driver s3, got %q", opts.cfg.Blob.Driver)
			}
			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			info, err := a.service.ArchiveHistory(cmd.Context(), entity, args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-part-types",
		Short: "Add the default part types to an empty catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.service.SeedPartTypes(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d part types\n", n)
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
