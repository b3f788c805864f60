package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/cloudx-io/gridmatch/config"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "gridmatch",
		Usage: "Hierarchical demand response market",
		Commands: []*cli.Command{
			runCmd,
			checkConfigCmd,
			genKeyCmd,
			signMeasurementCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "gridmatch.yaml",
	EnvVars: []string{"GRIDMATCH_CONFIG"},
	Usage:   "path to the YAML configuration",
}

var checkConfigCmd = &cli.Command{
	Name:  "check-config",
	Usage: "Validate a configuration file and print the node tree",
	Flags: []cli.Flag{configFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		fmt.Printf("market basis: %s\n", cfg.MarketBasis)
		fmt.Printf("auctioneer:   %s\n", cfg.Auctioneer.ID)
		for _, c := range cfg.Concentrators {
			kind := "concentrator"
			if c.PeakShaving != nil {
				kind = fmt.Sprintf("peak shaving [%g, %g]", c.PeakShaving.Floor, c.PeakShaving.Ceiling)
			}
			fmt.Printf("  %s -> %s (%s)\n", c.ID, c.DesiredParent, kind)
		}
		for _, a := range cfg.Agents {
			fmt.Printf("  %s -> %s (agent, %d demand values)\n", a.ID, a.DesiredParent, len(a.Demand))
		}
		return nil
	},
}
