package commands

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spinup/spinup/pkg/agent"
	"github.com/spinup/spinup/pkg/envinject"
	"github.com/spinup/spinup/pkg/jsonq"
	"github.com/spinup/spinup/pkg/launch"
	"github.com/spinup/spinup/pkg/provision"
	"github.com/spinup/spinup/pkg/retry"
	"github.com/spinup/spinup/pkg/telemetry"
	"github.com/spinup/spinup/pkg/transports/ssh"
)

func newLaunchCommand() *cobra.Command {
	var (
		provider    string
		prompt      string
		agentBinary string
		agentFlags  []string
		pollCmd     string
		maxAttempts int
		interval    time.Duration
		extraEnv    []string
		metricsAddr string
		traceStdout bool
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Provision an instance and start a coding agent on it",
		Long: `Launch provisions an instance through your provider script, waits for
it to boot, injects your credentials into its shell profile, and starts
the agent with your prompt.

The --poll-cmd command is run repeatedly until its JSON output reports
the provider's target status and a public address. It must print the
provider API response on stdout and exit 0; any non-zero exit is
retried within the attempt budget.`,
		Example: `  # Launch on Hetzner, polling with hcloud
  spinup launch --provider hetzner \
    --poll-cmd 'hcloud server describe my-box -o json' \
    --prompt 'fix the failing tests in ~/repo'

  # Pass extra environment to the agent
  spinup launch --provider digitalocean \
    --poll-cmd './scripts/describe-droplet.sh' \
    --env ANTHROPIC_API_KEY="$ANTHROPIC_API_KEY" \
    --prompt 'review the open PRs'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			desc, err := catalog.Get(provider)
			if err != nil {
				return err
			}

			pairs, err := parseEnvPairs(extraEnv)
			if err != nil {
				return err
			}

			log.Info().
				Str("provider", desc.Name).
				Str("agent", agentBinary).
				Msg("Launching")

			cfg := telemetry.DefaultConfig()
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddress = metricsAddr
			}
			if traceStdout {
				cfg.Tracing.Enabled = true
				cfg.Tracing.Exporter = "stdout"
			}

			metrics := telemetry.NewMetrics(cfg.Metrics)
			metrics.StartMetricsServer(cmd.Context(), cfg.Metrics)

			tracer, err := telemetry.NewTracer(cmd.Context(), cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
			if err != nil {
				return err
			}
			defer func() {
				if err := tracer.Shutdown(context.Background()); err != nil {
					log.Warn().Err(err).Msg("trace exporter shutdown failed")
				}
			}()

			launcher := &launch.Launcher{
				Tmp:     registry,
				Metrics: metrics,
				Tracer:  tracer,
			}
			res, err := launcher.Run(cmd.Context(), launch.Request{
				Provider:    desc,
				API:         commandAPI(pollCmd),
				Dial:        sshDial(desc.SSHUser),
				Agent:       agent.Command{Binary: agentBinary, Flags: agentFlags, Prompt: prompt},
				ExtraEnv:    pairs,
				MaxAttempts: maxAttempts,
				Schedule:    &retry.Schedule{Initial: interval},
			})
			if err != nil {
				return err
			}

			fmt.Printf("Agent running on %s (run %s)\n", res.IP, res.RunID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider name from the catalog")
	cmd.Flags().StringVar(&prompt, "prompt", "", "task prompt for the agent")
	cmd.Flags().StringVar(&agentBinary, "agent", "claude", "agent binary on the instance")
	cmd.Flags().StringArrayVar(&agentFlags, "agent-flag", nil, "extra flag passed to the agent (repeatable)")
	cmd.Flags().StringVar(&pollCmd, "poll-cmd", "", "shell command printing the provider API response as JSON")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", provision.DefaultMaxAttempts, "provisioning poll attempt budget")
	cmd.Flags().DurationVar(&interval, "interval", provision.DefaultInterval, "delay between provisioning polls")
	cmd.Flags().StringArrayVar(&extraEnv, "env", nil, "extra KEY=VALUE injected into the remote profile (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&traceStdout, "trace", false, "emit launch phase traces to stdout")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("prompt")
	_ = cmd.MarkFlagRequired("poll-cmd")

	return cmd
}

// commandAPI adapts a shell command into a provisioning API: stdout is the
// JSON body, a non-zero exit is an error the poller retries.
func commandAPI(pollCmd string) provision.API {
	return provision.APIFunc(func(ctx context.Context) ([]byte, error) {
		out, err := exec.CommandContext(ctx, "sh", "-c", pollCmd).Output()
		if err != nil {
			return nil, fmt.Errorf("%s", jsonq.ErrorMessage(out, err.Error()))
		}
		return out, nil
	})
}

// sshDial connects to the instance as the provider's image user.
func sshDial(user string) launch.DialFunc {
	return func(ctx context.Context, ip string) (launch.Host, error) {
		client, err := ssh.NewClient(ssh.DefaultConfig(ip, user))
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

func parseEnvPairs(raw []string) ([]envinject.Pair, error) {
	var pairs []envinject.Pair
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env entry %q, want KEY=VALUE", entry)
		}
		pairs = append(pairs, envinject.Pair{Key: key, Value: value})
	}
	return pairs, nil
}
