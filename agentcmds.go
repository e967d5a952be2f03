package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// Agent commands report lifecycle events observed off-process.  The acting
// account must be the agent assigned to the minipool at admission.
func GetAgentCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "agent",
		Aliases: []string{"a"},
		Usage:   "Report lifecycle events as a minipool's assigned agent",
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Record that validation began for a launched minipool",
				Action: AgentStart,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.IntFlag{
						Name:  "start",
						Usage: "Observed validation start, unix seconds (default: now)",
					},
				},
			},
			{
				Name:   "rewards",
				Usage:  "Distribute an observed interval reward (0 triggers a slash)",
				Action: AgentRewards,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.UintFlag{
						Name:  "reward",
						Usage: "Interval reward observed, in base units",
					},
					&cli.UintFlag{
						Name:  "forwarded",
						Usage: "Funds forwarded with this report, in base units",
					},
				},
			},
			{
				Name:   "settle",
				Usage:  "Record validation end, settle funds, and renew the cycle when still in window",
				Action: AgentSettle,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.IntFlag{
						Name:  "end",
						Usage: "Observed validation end, unix seconds (default: now)",
					},
					&cli.UintFlag{
						Name:  "reward",
						Usage: "Total reward earned over the cycle, in base units (0 triggers a slash)",
					},
					&cli.UintFlag{
						Name:  "forwarded",
						Usage: "Funds forwarded with this report, in base units",
					},
					&cli.BoolFlag{
						Name:  "no-renew",
						Usage: "Settle only, never recompound into a new cycle",
					},
				},
			},
			{
				Name:   "error",
				Usage:  "Record a validation failure, refunding both capital sides",
				Action: AgentError,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Diagnostic code describing the failure",
						Required: true,
					},
					&cli.UintFlag{
						Name:     "forwarded",
						Usage:    "Funds forwarded with this report; must equal the minipool's full principal",
						Required: true,
					},
				},
			},
			{
				Name:   "cancel",
				Usage:  "Cancel a minipool that cannot launch and return all funds",
				Action: AgentCancel,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Diagnostic code describing why launch was abandoned",
						Required: true,
					},
				},
			},
		},
	}
}

func AgentStart(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	start := cmd.Int("start")
	if start == 0 {
		start = time.Now().Unix()
	}
	identity := cmd.String("identity")
	if err := App.manager.RecordStakingStart(account, identity, start); err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s now staking as of %d", identity, start)
	return nil
}

func AgentRewards(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	err = App.manager.DistributeRewards(account, identity, cmd.Uint("reward"), cmd.Uint("forwarded"))
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "distributed interval reward of %d for %s", cmd.Uint("reward"), identity)
	return nil
}

func AgentSettle(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	end := cmd.Int("end")
	if end == 0 {
		end = time.Now().Unix()
	}
	identity := cmd.String("identity")
	if cmd.Bool("no-renew") {
		err = App.manager.RecordStakingEnd(account, identity, end, cmd.Uint("reward"), cmd.Uint("forwarded"))
	} else {
		err = App.manager.RecordStakingEndThenMaybeCycle(account, identity, end, cmd.Uint("reward"), cmd.Uint("forwarded"))
	}
	if err != nil {
		return err
	}
	mp, err := App.manager.GetMinipool(identity)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s settled, status now %s", identity, mp.Status)
	return nil
}

func AgentError(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	err = App.manager.RecordStakingError(account, identity, cmd.Uint("forwarded"), cmd.String("code"))
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s errored with code %s", identity, cmd.String("code"))
	return nil
}

func AgentCancel(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	if result, _ := yesNo(fmt.Sprintf("REALLY cancel minipool %s and return all funds", identity)); result != "y" {
		return nil
	}
	if err := App.manager.CancelMinipoolByAgent(account, identity, cmd.String("code")); err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s canceled", identity)
	return nil
}
