package main

import (
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiond"
	"github.com/urfave/cli"
)

var solversCommands = cli.Command{
	Name:  "solvers",
	Usage: "manage the registered resolvers",
	Subcommands: []cli.Command{
		listSolversCommand,
		registerSolverCommand,
	},
}

var listSolversCommand = cli.Command{
	Name:   "list",
	Usage:  "list all registered resolvers",
	Action: listSolvers,
}

func listSolvers(ctx *cli.Context) error {
	var resp []*fusiond.SolverResponse
	if err := getClient(ctx).get("/solvers", &resp); err != nil {
		return err
	}

	printJSON(resp)

	return nil
}

var registerSolverCommand = cli.Command{
	Name:      "register",
	Usage:     "register a resolver",
	ArgsUsage: "wallet webhook_url",
	Description: `
	Registers the resolver with the wallet address. New orders and
	revealed secrets are posted to the webhook url.`,
	Action: registerSolver,
}

func registerSolver(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "register")
	}

	req := &fusiond.RegisterSolverRequest{
		WalletAddress: ctx.Args().First(),
		WebhookURL:    ctx.Args().Get(1),
	}

	var resp fusiond.SolverResponse
	if err := getClient(ctx).post("/solvers", req, &resp); err != nil {
		return err
	}

	printJSON(&resp)

	return nil
}
