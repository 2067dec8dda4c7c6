package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/output"
	"github.com/agentic-research/tarim/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the outputs of the last completed run to S3",
	Long: `Uploads the files listed in run_report.json to the bucket configured in
the publish "s3" block of tarim.hcl. Credentials come from the standard
AWS environment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Close() }() // safe to ignore

		if cfg.Publish == nil {
			return errors.New(`no publish "s3" block in config`)
		}
		p, err := publish.NewS3(cmd.Context(), cfg.Publish)
		if err != nil {
			return err
		}
		p.Log = log.Logger

		res, err := p.Publish(cmd.Context(), output.OpenDir(cfg.DataDir))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published run %s: %d files to s3://%s/%s\n",
			res.RunID, len(res.Keys), p.Bucket, p.Prefix)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
