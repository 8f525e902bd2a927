package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/forceview/pkg/render/nodelink"
	"github.com/matzehuels/forceview/pkg/sim"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for forceview.

Completions cover command names, flags, graph and layout files (*.json) for
simulate, render and watch, and the values of --format and --strategy.

To load completions:

Bash:
  $ source <(forceview completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ forceview completion bash > /etc/bash_completion.d/forceview
  # macOS:
  $ forceview completion bash > $(brew --prefix)/etc/bash_completion.d/forceview

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ forceview completion zsh > "${fpath[1]}/_forceview"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ forceview completion fish | source

  # To load completions for each session, execute once:
  $ forceview completion fish > ~/.config/fish/completions/forceview.fish

PowerShell:
  PS> forceview completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> forceview completion powershell > forceview.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// registerInputCompletions completes the single input argument of cmd with
// JSON files, and the --strategy and --format flags when cmd has them.
func registerInputCompletions(cmd *cobra.Command) {
	cmd.ValidArgsFunction = func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return []string{"json"}, cobra.ShellCompDirectiveFilterFileExt
	}
	if cmd.Flags().Lookup("strategy") != nil {
		_ = cmd.RegisterFlagCompletionFunc("strategy", cobra.FixedCompletions(
			[]string{sim.Pairwise.String(), sim.GridAggregate.String()},
			cobra.ShellCompDirectiveNoFileComp,
		))
	}
	if cmd.Flags().Lookup("format") != nil {
		_ = cmd.RegisterFlagCompletionFunc("format", completeFormats)
	}
}

// completeFormats completes the last entry of a comma-separated format list,
// skipping formats already listed.
func completeFormats(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var prefix string
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
	}
	var out []string
	for _, f := range nodelink.Formats {
		if !strings.Contains(","+prefix, ","+f+",") {
			out = append(out, prefix+f)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}
