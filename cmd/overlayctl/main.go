// Command overlayctl queries overlay lookup services, broadcasts transactions to topic
// managers and manages SHIP/SLAP advertisements from the command line.
//
// Usage:
//
//	overlayctl --config overlay.yaml lookup --service ls_foo --query '{"name":"alice"}'
//	overlayctl hosts --service ls_foo
//	overlayctl broadcast --topics tm_foo --file tx.beef
//	overlayctl decode --script <hex> --verify
//	overlayctl advertise --key <hex> --uri https://host.example --ship tm_foo --slap ls_foo
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/bsv-blockchain/go-overlay-client/pkg/config"
)

type metadata struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "overlayctl"
	app.Usage = "overlay network lookup, broadcast and advertisement tool"
	app.Version = "v1"
	app.HideVersion = false

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "",
			Usage: "YAML configuration `FILE`",
		},
		cli.StringFlag{
			Name:  "network, n",
			Value: "",
			Usage: "network preset `NAME` (mainnet, testnet or local), overrides the configuration",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log debug output to stderr",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "lookup",
			Usage: "resolve a lookup question and print the merged answer",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "service, s",
					Usage: "*lookup service `NAME`, e.g. ls_foo",
				},
				cli.StringFlag{
					Name:  "query, q",
					Value: "{}",
					Usage: "query `JSON` passed to the lookup service",
				},
			},
			Action: runLookup,
		},
		{
			Name:  "hosts",
			Usage: "list the hosts the SLAP trackers know for a lookup service",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "service, s",
					Usage: "*lookup service `NAME`",
				},
			},
			Action: runHosts,
		},
		{
			Name:  "broadcast",
			Usage: "submit a BEEF transaction to the hosts interested in its topics",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "topics, t",
					Usage: "topic `NAME` to submit under, repeatable (defaults to the configured topics)",
				},
				cli.StringFlag{
					Name:  "file, f",
					Usage: "read binary BEEF from `FILE`",
				},
				cli.StringFlag{
					Name:  "hex",
					Usage: "BEEF as a `HEX` string",
				},
			},
			Action: runBroadcast,
		},
		{
			Name:  "decode",
			Usage: "decode a pushdrop or advertisement locking script",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "script",
					Usage: "*locking script `HEX`",
				},
				cli.BoolFlag{
					Name:  "verify",
					Usage: "verify the advertisement signature and names",
				},
			},
			Action: runDecode,
		},
		{
			Name:  "advertise",
			Usage: "create SHIP/SLAP advertisements with a local wallet and broadcast them",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "key, k",
					Usage:  "*wallet private `KEY` in hex",
					EnvVar: "OVERLAY_PRIVATE_KEY",
				},
				cli.StringFlag{
					Name:  "uri, u",
					Usage: "*advertisable `URI` of this host",
				},
				cli.StringSliceFlag{
					Name:  "ship",
					Usage: "topic `NAME` to advertise over SHIP, repeatable",
				},
				cli.StringSliceFlag{
					Name:  "slap",
					Usage: "lookup service `NAME` to advertise over SLAP, repeatable",
				},
				cli.BoolFlag{
					Name:  "dry-run",
					Usage: "print the advertisement transaction without broadcasting it",
				},
			},
			Action: runAdvertise,
		},
	}

	app.Before = func(c *cli.Context) error {
		level := slog.LevelInfo
		if c.GlobalBool("verbose") {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		cfg, err := config.Load(c.GlobalString("config"))
		if err != nil {
			return err
		}
		if network := c.GlobalString("network"); network != "" {
			cfg.Network = network
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		c.App.Metadata = map[string]interface{}{
			"config": &metadata{config: cfg, logger: logger, out: out},
		}
		return nil
	}
	return app
}

func meta(c *cli.Context) *metadata {
	return c.App.Metadata["config"].(*metadata)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
