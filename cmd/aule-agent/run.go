package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manthysbr/auleagent/internal/adapters/operator"
	"github.com/manthysbr/auleagent/internal/core/domain"
)

var (
	runGoal        string
	runAttachments []string
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a single goal and print the report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := runGoal
		if len(args) == 1 {
			goal = args[0]
		}
		goal = strings.TrimSpace(goal)
		if goal == "" {
			return fmt.Errorf("a goal is required: pass it as an argument or with --goal")
		}

		attachments, err := loadAttachments(runAttachments)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		logger := newLogger(os.Stderr, false)
		terminal := operator.NewTerminal(os.Stdin, os.Stdout)

		a, err := bootstrap(ctx, logger, terminal)
		if err != nil {
			return err
		}
		defer a.close()

		terminal.Printf("%s\n", a.agent.Run(ctx, goal, attachments))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runGoal, "goal", "g", "", "goal to pursue")
	runCmd.Flags().StringSliceVarP(&runAttachments, "attach", "a", nil, "file to attach (repeatable), optionally path=description")
}

// loadAttachments reads "path" or "path=description" specs. The MIME type
// comes from the file extension.
func loadAttachments(specs []string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, arg := range specs {
		path, desc, _ := strings.Cut(arg, "=")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		out = append(out, domain.Attachment{
			Blob:        domain.Blob{Data: data, MIMEType: mimeType},
			Description: desc,
		})
	}
	return out, nil
}
