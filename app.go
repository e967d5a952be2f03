package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/misc"
	"github.com/harborstake/minipoold/internal/lib/protocol"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *MinipoolApp {
	log.SetFlags(0)
	var logger *slog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		// Output is a tty - we're being run as CLI vs as a daemon
		logger = slog.New(misc.NewMinimalHandler(os.Stdout,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	} else {
		// not on console - output as json, with key names compatible with what
		// google logging expects
		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.MessageKey {
					a.Key = "message"
				} else if a.Key == slog.LevelKey && len(groups) == 0 {
					a.Key = "severity"
				}
				return a
			},
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings()

	// The wrapper instance is initialized first so its methods can be used in
	// the 'Before' lambda of the cli Command instance.
	appConfig := &MinipoolApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "minipoold",
		Usage:   "Configuration tool and background daemon for two-sided staking minipools",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			return appConfig.initCollaborators(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("MINIPOOL_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:        "datadir",
				Usage:       "Directory holding the minipool database and params file",
				Value:       "data",
				Aliases:     []string{"d"},
				Sources:     cli.EnvVars("MINIPOOL_DATADIR"),
				Destination: &appConfig.dataDir,
			},
			&cli.StringFlag{
				Name:        "account",
				Usage:       "Account identity to act as for owner and agent commands",
				Sources:     cli.EnvVars("MINIPOOL_ACCOUNT"),
				Destination: &appConfig.account,
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetMinipoolCmdOpts(),
			GetAgentCmdOpts(),
			GetParamsCmdOpts(),
		},
	}
	return appConfig
}

type MinipoolApp struct {
	cliCmd  *cli.Command
	logger  *slog.Logger
	store   *minipool.Store
	manager *minipool.Manager
	params  *protocol.Params
	vault   *protocol.Vault
	pool    *protocol.StakerPool
	ledger  *protocol.Ledger
	oracle  *protocol.StaticOracle
	agents  *protocol.AgentPool
	early   *protocol.EarlyParticipants

	// flag bootstrapping destinations
	dataDir string
	account string
}

// initCollaborators opens the database and wires the reference protocol
// collaborators into a Manager.  Runs before every command.
func (ac *MinipoolApp) initCollaborators(ctx context.Context, cmd *cli.Command) error {
	if envfile := cmd.String("envfile"); envfile != "" {
		misc.Infof(ac.logger, "loading env file:%s", envfile)
		if err := misc.LoadEnvFile(envfile); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(ac.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", ac.dataDir, err)
	}

	params, err := protocol.LoadParams(ac.ParamsPath())
	if err != nil {
		return err
	}
	ac.params = params

	store, err := minipool.Open(filepath.Join(ac.dataDir, "minipools"))
	if err != nil {
		return err
	}
	ac.store = store

	ac.vault = protocol.NewVault()
	ac.oracle = protocol.NewStaticOracle(envPrice())
	ac.ledger = protocol.NewLedger(ac.oracle)
	ac.pool = protocol.NewStakerPool(envPoolDeposits())
	ac.agents = protocol.NewAgentPool(envAgents()...)
	ac.early = protocol.NewEarlyParticipants(envEarlyParticipants()...)

	creds, err := protocol.NewSeedCredentialSource()
	if err != nil {
		// Only agent/owner mutations need credentials; queries don't.  Defer
		// the failure until a command actually exercises registration.
		misc.Debugf(ac.logger, "credential source unavailable: %v", err)
		creds = nil
	}

	manager, err := minipool.New(ac.logger, store, minipool.Collaborators{
		Vault:             ac.vault,
		Pool:              ac.pool,
		Ledger:            ac.ledger,
		Oracle:            ac.oracle,
		Params:            ac.params,
		Agents:            ac.agents,
		EarlyParticipants: ac.early,
		Registry:          protocol.NewRecordingRegistry(),
		Credentials:       credentialSourceOrErr(creds),
		Clock:             protocol.SystemClock{},
	})
	if err != nil {
		return err
	}
	ac.manager = manager
	return nil
}

func (ac *MinipoolApp) ParamsPath() string {
	return filepath.Join(ac.dataDir, "params.json")
}
