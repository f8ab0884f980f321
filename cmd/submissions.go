package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"example.com/backstage/services/drafts/internal/database"
	"example.com/backstage/services/drafts/internal/repositories"
)

var (
	submissionsProgram int64
	submissionsLimit   int
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List the latest recorded submissions of a program",
	RunE:  runSubmissions,
}

func init() {
	submissionsCmd.Flags().Int64Var(&submissionsProgram, "program", 0, "program id")
	submissionsCmd.Flags().IntVar(&submissionsLimit, "limit", 20, "maximum number of submissions")
	_ = submissionsCmd.MarkFlagRequired("program")
	rootCmd.AddCommand(submissionsCmd)
}

func runSubmissions(cmd *cobra.Command, args []string) error {
	if submissionsProgram <= 0 {
		return errors.Errorf("invalid program id %d", submissionsProgram)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	subs, err := repositories.NewSubmissionRepository(conn.Write, conn.Read).ListByProgram(ctx, submissionsProgram, submissionsLimit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(subs)
}
