package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion code for the specified shell",
	Long: `To load completions:

Bash:

  $ source <(forkdb completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ forkdb completion bash > /etc/bash_completion.d/forkdb
  # macOS:
  $ forkdb completion bash > $(brew --prefix)/etc/bash_completion.d/forkdb

Zsh:

  $ forkdb completion zsh > "${fpath[1]}/_forkdb"

Fish:

  $ forkdb completion fish > ~/.config/fish/completions/forkdb.fish`,
	ValidArgs:     []string{"bash", "zsh", "fish"},
	Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:          cmdRunCompletion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// cmdRunCompletion writes the completion script for the requested shell to stdout.
func cmdRunCompletion(cmd *cobra.Command, args []string) error {
	var err error
	switch args[0] {
	case "bash":
		err = cmd.Root().GenBashCompletion(os.Stdout)
	case "zsh":
		err = cmd.Root().GenZshCompletion(os.Stdout)
	case "fish":
		err = cmd.Root().GenFishCompletion(os.Stdout, true)
	}
	if err != nil {
		err = errors.Wrapf(err, "unable to generate a %s completion", args[0])
		cmdLogger.Error("Failed to run the completion command", err)
		return err
	}
	return nil
}
