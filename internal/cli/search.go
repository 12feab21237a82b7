package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shopbot/internal/app"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Print the reply payload the bot would send for a keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			a, err := app.NewSearchOnly(cc.cfg, cc.log)
			if err != nil {
				return err
			}

			res, err := a.Search.SearchAndBuildReply(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(res.Message, "", "  ")
			if err != nil {
				return fmt.Errorf("encode reply: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
