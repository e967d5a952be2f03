package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/harborstake/minipoold/internal/lib/misc"
	"github.com/harborstake/minipoold/internal/lib/protocol"
)

func GetParamsCmdOpts() *cli.Command {
	return &cli.Command{
		Name:  "params",
		Usage: "Inspect or initialize the protocol parameter file",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective protocol parameters",
				Action: ParamsShow,
			},
			{
				Name:   "init",
				Usage:  "Write a default parameter file into the data dir for editing",
				Action: ParamsInit,
			},
		},
	}
}

func ParamsShow(ctx context.Context, cmd *cli.Command) error {
	data, err := json.MarshalIndent(App.params, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func ParamsInit(ctx context.Context, cmd *cli.Command) error {
	path := App.ParamsPath()
	if _, err := os.Stat(path); err == nil {
		result, _ := yesNo(fmt.Sprintf("A params file already exists at %s, do you REALLY want to overwrite it with defaults", path))
		if result != "y" {
			return nil
		}
	}
	if err := protocol.SaveParams(protocol.DefaultParams(), path); err != nil {
		return err
	}
	misc.Infof(App.logger, "default params written to:%s", path)
	return nil
}
