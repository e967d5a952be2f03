package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/misc"
)

func GetMinipoolCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "minipool",
		Aliases: []string{"m"},
		Usage:   "Create and manage minipools as a node operator",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List minipools",
				Action:  MinipoolList,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show minipools with this status (eg: Staking)",
					},
					&cli.UintFlag{
						Name:  "offset",
						Usage: "Number of (filtered) records to skip",
					},
					&cli.UintFlag{
						Name:  "limit",
						Usage: "Maximum records to return, 0 for all",
					},
				},
			},
			{
				Name:   "show",
				Usage:  "Show the full record for one minipool",
				Action: MinipoolShow,
				Flags:  []cli.Flag{identityFlag()},
			},
			{
				Name:    "create",
				Aliases: []string{"c"},
				Usage:   "Admit a new minipool, escrowing your capital",
				Action:  MinipoolCreate,
				Flags: []cli.Flag{
					identityFlag(),
					&cli.UintFlag{
						Name:     "days",
						Usage:    "Requested validation period in days",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "fee",
						Usage: fmt.Sprintf("Delegation fee in fractions of %d (ie: 20000 = 2%%)", minipool.FractionScale),
						Value: minipool.MinDelegationFee,
					},
					&cli.UintFlag{
						Name:     "capital",
						Usage:    "Operator capital to escrow, in base units",
						Required: true,
					},
					&cli.UintFlag{
						Name:     "match",
						Usage:    "Pooled capital to request, in base units",
						Required: true,
					},
				},
			},
			{
				Name:   "cancel",
				Usage:  "Cancel a minipool still waiting for launch and recover your capital",
				Action: MinipoolCancel,
				Flags:  []cli.Flag{identityFlag()},
			},
			{
				Name:   "claim",
				Usage:  "Claim pooled matching capital and initiate staking",
				Action: MinipoolClaim,
				Flags:  []cli.Flag{identityFlag()},
			},
			{
				Name:   "withdraw",
				Usage:  "Withdraw principal and final rewards from a settled minipool",
				Action: MinipoolWithdraw,
				Flags:  []cli.Flag{identityFlag()},
			},
			{
				Name:   "claim-rewards",
				Usage:  "Withdraw accumulated interval rewards mid-cycle",
				Action: MinipoolClaimRewards,
				Flags:  []cli.Flag{identityFlag()},
			},
		},
	}
}

func identityFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "identity",
		Aliases:  []string{"i"},
		Usage:    "Validator identity of the minipool",
		Required: true,
	}
}

func MinipoolList(ctx context.Context, cmd *cli.Command) error {
	var filter *minipool.MinipoolStatus
	if str := cmd.String("status"); str != "" {
		st, err := parseStatus(str)
		if err != nil {
			return err
		}
		filter = &st
	}
	pools, err := App.manager.ListMinipools(filter, cmd.Uint("offset"), cmd.Uint("limit"))
	if err != nil {
		return err
	}

	out := new(tabwriter.Writer)
	out.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(out, "Index\tIdentity\tStatus\tOwner\tOperator Capital\tPooled Capital\tEnds")
	for _, mp := range pools {
		ends := "-"
		if mp.EndTime != 0 {
			ends = time.Unix(mp.EndTime, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			mp.Index, mp.ValidatorIdentity, mp.Status, mp.Owner, mp.OperatorCapital, mp.LiquidStakerCapital, ends)
	}
	return out.Flush()
}

func MinipoolShow(ctx context.Context, cmd *cli.Command) error {
	mp, err := App.manager.GetMinipool(cmd.String("identity"))
	if err != nil {
		return err
	}
	fmt.Println(mp)
	return nil
}

func MinipoolCreate(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	capital := cmd.Uint("capital")
	match := cmd.Uint("match")
	if result, _ := yesNo(fmt.Sprintf("Escrow %d base units and request %d pooled for identity %s",
		capital, match, cmd.String("identity"))); result != "y" {
		return nil
	}
	mp, err := App.manager.CreateMinipool(account, cmd.String("identity"),
		cmd.Uint("days")*86400, cmd.Uint("fee"), capital, match)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool admitted at index:%d", mp.Index)
	return nil
}

func MinipoolCancel(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	if result, _ := yesNo(fmt.Sprintf("REALLY cancel minipool %s and return all funds", identity)); result != "y" {
		return nil
	}
	if err := App.manager.CancelMinipool(account, identity); err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s canceled", identity)
	return nil
}

func MinipoolClaim(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	if err := App.manager.ClaimAndInitiateStaking(account, identity); err != nil {
		return err
	}
	misc.Infof(App.logger, "minipool %s launched", identity)
	return nil
}

func MinipoolWithdraw(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	if result, _ := yesNo(fmt.Sprintf("Withdraw all remaining funds from %s, finishing it", identity)); result != "y" {
		return nil
	}
	paid, err := App.manager.WithdrawFinalFunds(account, identity)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "withdrew %d base units from %s", paid, identity)
	return nil
}

func MinipoolClaimRewards(ctx context.Context, cmd *cli.Command) error {
	account, err := requireAccount()
	if err != nil {
		return err
	}
	identity := cmd.String("identity")
	paid, err := App.manager.WithdrawPartialRewards(account, identity)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "withdrew %d base units of interval rewards from %s", paid, identity)
	return nil
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
