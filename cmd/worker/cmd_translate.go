package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/VilotStar/StableHorder/internal/translate"
	"github.com/spf13/cobra"
)

func newTranslateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <job.json|->",
		Short: "Print the generation request a popped job translates to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return translateJob(in, cmd.OutOrStdout())
		},
	}
}

func translateJob(in io.Reader, out io.Writer) error {
	var job model.Job
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	if job.Empty() {
		return fmt.Errorf("job has no id; an empty pop is not translated")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(translate.Translate(&job))
}
