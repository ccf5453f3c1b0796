// netvend is the agent-side client: it manages the agent key, registers
// it with a server and sends signed command batches.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Syriven/netvend/internal/agent"
	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/logging"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
)

const agentName = "default"

type options struct {
	configPath string
	server     string
	keyFile    string
	output     string
}

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "netvend: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "netvend",
		Short:         "netvend agent client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "client config TOML")
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", "", "server host:port (overrides config)")
	root.PersistentFlags().StringVarP(&opts.keyFile, "key", "k", "", "agent key file (overrides config)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "output format: text|json|yaml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newKeygenCmd(opts),
		newHandshakeCmd(opts),
		newSingleCmd(opts, "create-pocket", "create a pocket owned by the agent", cobra.NoArgs,
			func([]string) (protocol.Command, error) { return protocol.CreatePocket{}, nil }),
		newSingleCmd(opts, "deposit-address <pocket>", "issue a deposit address for a pocket", cobra.ExactArgs(1),
			func(args []string) (protocol.Command, error) { return parseCommandArg("deposit-address:" + args[0]) }),
		newSingleCmd(opts, "transfer <from> <to> <amount>", "move credit between pockets", cobra.ExactArgs(3),
			func(args []string) (protocol.Command, error) {
				return parseCommandArg("transfer:" + strings.Join(args, ":"))
			}),
		newSingleCmd(opts, "create-file <pocket> <name>", "create an empty file billed to a pocket", cobra.ExactArgs(2),
			func(args []string) (protocol.Command, error) {
				return parseCommandArg("create-file:" + args[0] + ":" + args[1])
			}),
		newSingleCmd(opts, "update-file <file> <data|@path>", "replace a file's contents", cobra.ExactArgs(2),
			func(args []string) (protocol.Command, error) {
				return parseCommandArg("update-file:" + args[0] + ":" + args[1])
			}),
		newSingleCmd(opts, "read-file <file>", "read a file's contents", cobra.ExactArgs(1),
			func(args []string) (protocol.Command, error) { return parseCommandArg("read-file:" + args[0]) }),
		newBatchCmd(opts),
	)
	return root
}

// resolve applies flags on top of the config file.
func (o *options) resolve() (clientConfig, error) {
	cfg := defaultClientConfig()
	if o.configPath != "" {
		loaded, err := loadClientConfig(o.configPath)
		if err != nil {
			return clientConfig{}, err
		}
		cfg = loaded
	}
	if o.server != "" {
		cfg.Server = o.server
	}
	if o.keyFile != "" {
		cfg.KeyFile = o.keyFile
	}
	if o.output != "" {
		cfg.Output = strings.ToLower(o.output)
	}
	if err := validateOutput(cfg.Output); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

// connect loads the agent key and attaches it to the configured server.
func connect(cfg clientConfig) (*agent.Registry, *agent.Record, error) {
	reg := agent.NewRegistry(cfg.Session)
	reg.SetHandshakeAttempts(cfg.HandshakeAttempts)
	rec, err := reg.Load(agentName, cfg.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load agent key (run netvend keygen first): %w", err)
	}
	if err := reg.Attach(agentName, cfg.Server); err != nil {
		return nil, nil, err
	}
	return reg, rec, nil
}

func newKeygenCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate an agent key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			k, err := identity.GenerateKeyPair(rand.Reader)
			if err != nil {
				return err
			}
			if err := identity.WriteKeyFile(cfg.KeyFile, k, force); err != nil {
				return err
			}
			log.Debug().Str("key_file", cfg.KeyFile).Msg("netvend keygen wrote key")
			return render(cmd.OutOrStdout(), cfg.Output, keyView{Address: k.Address(), KeyFile: cfg.KeyFile})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing key file")
	return cmd
}

func newHandshakeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake",
		Short: "register the agent's public key with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			reg, rec, err := connect(cfg)
			if err != nil {
				return err
			}
			defer reg.Close()
			resp, err := reg.Handshake(cmd.Context(), agentName)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, handshakeView{
				Address:         rec.Address(),
				IsNewAgent:      resp.IsNewAgent,
				DefaultPocketID: resp.DefaultPocketID,
			})
		},
	}
}

func newSingleCmd(opts *options, use, short string, args cobra.PositionalArgs, build func([]string) (protocol.Command, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(args)
			if err != nil {
				return err
			}
			return sendBatch(cmd, opts, []protocol.Command{c})
		},
	}
}

func newBatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <command>...",
		Short: "send several commands in one signed batch",
		Long: `Each argument is one command:

  create-pocket
  deposit-address:<pocket>
  transfer:<from>:<to>:<amount>
  create-file:<pocket>:<name>
  update-file:<file>:<text>   (or update-file:<file>:@<path>)
  read-file:<file>`,
		Args: cobra.RangeArgs(1, protocol.MaxBatchCommands),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds := make([]protocol.Command, 0, len(args))
			for i, raw := range args {
				c, err := parseCommandArg(raw)
				if err != nil {
					return fmt.Errorf("command %d: %w", i, err)
				}
				cmds = append(cmds, c)
			}
			return sendBatch(cmd, opts, cmds)
		},
	}
}

var errBatchRejected = errors.New("batch rejected: agent unknown to server or bad signature")

func sendBatch(cmd *cobra.Command, opts *options, cmds []protocol.Command) error {
	cfg, err := opts.resolve()
	if err != nil {
		return err
	}
	b, err := protocol.NewBatch(cmds...)
	if err != nil {
		return err
	}
	reg, _, err := connect(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	out, err := reg.Execute(cmd.Context(), agentName, b)
	if err != nil {
		return err
	}
	if err := render(cmd.OutOrStdout(), cfg.Output, newBatchView(b, out)); err != nil {
		return err
	}
	if out.Completion == packet.CompletionNone {
		return errBatchRejected
	}
	return nil
}
