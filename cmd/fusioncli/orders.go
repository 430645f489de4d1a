package main

import (
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiond"
	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/holiman/uint256"
	"github.com/urfave/cli"
)

var submitCommand = cli.Command{
	Name:  "submit",
	Usage: "submit a cross-chain swap order",
	Description: `
	Submits an order selling srcamt of srctoken on srcchain for at least
	dstamt of dsttoken on dstchain. The secret hash locks both escrows of
	the swap, create one with "secret new".

	The permit signature can either be passed in with --signature or
	created locally from --key.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "maker",
			Usage: "the address of the maker on the source chain",
		},
		cli.StringFlag{
			Name: "receiver",
			Usage: "the address of the maker on the destination " +
				"chain, defaults to the maker address",
		},
		cli.StringFlag{
			Name:  "srcchain",
			Usage: "the chain to sell on",
		},
		cli.StringFlag{
			Name:  "dstchain",
			Usage: "the chain to buy on",
		},
		cli.StringFlag{
			Name:  "srctoken",
			Usage: "the token to sell",
		},
		cli.StringFlag{
			Name:  "dsttoken",
			Usage: "the token to buy",
		},
		cli.StringFlag{
			Name:  "srcamt",
			Usage: "the exact amount to sell in base units",
		},
		cli.StringFlag{
			Name:  "dstamt",
			Usage: "the minimum amount to buy in base units",
		},
		cli.StringFlag{
			Name:  "secrethash",
			Usage: "the hex encoded sha256 hash of the secret",
		},
		cli.StringFlag{
			Name:  "signature",
			Usage: "the hex encoded permit signature",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "the hex encoded maker key to sign the permit with",
		},
		cli.StringFlag{
			Name:  "scheme",
			Usage: "the signature scheme of the key",
			Value: permit.SchemeEd25519.String(),
		},
		cli.StringFlag{
			Name:  "spender",
			Usage: "the spender of the permit",
		},
		cli.StringFlag{
			Name:  "encoding",
			Usage: "the permit digest encoding, legacy or tlv",
			Value: permit.EncodingLegacy.String(),
		},
	},
	Action: submit,
}

func submit(ctx *cli.Context) error {
	if ctx.NumFlags() == 0 {
		return cli.ShowCommandHelp(ctx, "submit")
	}

	req := &fusiond.SubmitOrderRequest{
		Maker:             ctx.String("maker"),
		Receiver:          ctx.String("receiver"),
		SourceChain:       ctx.String("srcchain"),
		DestinationChain:  ctx.String("dstchain"),
		SourceToken:       ctx.String("srctoken"),
		DestinationToken:  ctx.String("dsttoken"),
		SourceAmount:      ctx.String("srcamt"),
		DestinationAmount: ctx.String("dstamt"),
		SecretHash:        ctx.String("secrethash"),
		Signature:         ctx.String("signature"),
	}

	if ctx.IsSet("key") {
		if req.Signature != "" {
			return errors.New("signature and key are mutually " +
				"exclusive")
		}

		amount, err := uint256.FromDecimal(req.SourceAmount)
		if err != nil {
			return fmt.Errorf("invalid srcamt: %w", err)
		}

		sig, err := signPermit(ctx, &permit.Permit{
			Token:   req.SourceToken,
			Owner:   req.Maker,
			Spender: ctx.String("spender"),
			Amount:  amount,
		})
		if err != nil {
			return err
		}

		req.Signature = sig.SigHex()
		req.SignatureScheme = sig.Scheme.String()
		req.MakerPubKey = sig.PubKeyHex()
	}

	var resp order.Payload
	if err := getClient(ctx).post("/orders", req, &resp); err != nil {
		return err
	}

	printJSON(&resp)

	return nil
}

var orderCommand = cli.Command{
	Name:      "order",
	Usage:     "show an order or list all orders",
	ArgsUsage: "[id]",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "updates",
			Usage: "show the status history of the order",
		},
	},
	Action: showOrder,
}

func showOrder(ctx *cli.Context) error {
	c := getClient(ctx)

	if ctx.NArg() == 0 {
		var resp []*order.Payload
		if err := c.get("/orders", &resp); err != nil {
			return err
		}

		printJSON(resp)

		return nil
	}

	id := ctx.Args().First()

	if ctx.Bool("updates") {
		var resp []*fusiond.UpdateResponse
		if err := c.get("/orders/"+id+"/updates", &resp); err != nil {
			return err
		}

		printJSON(resp)

		return nil
	}

	var resp order.Payload
	if err := c.get("/orders/"+id, &resp); err != nil {
		return err
	}

	printJSON(&resp)

	return nil
}

var acceptCommand = cli.Command{
	Name:      "accept",
	Usage:     "bind a resolver to an order",
	ArgsUsage: "id resolver",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name: "price",
			Usage: "the destination amount the resolver commits " +
				"to, defaults to the destination amount of the " +
				"order",
		},
	},
	Action: accept,
}

func accept(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "accept")
	}

	req := &fusiond.AcceptRequest{
		Resolver: ctx.Args().Get(1),
		Price:    ctx.String("price"),
	}

	var resp order.Payload
	err := getClient(ctx).post(
		"/orders/"+ctx.Args().First()+"/accept", req, &resp,
	)
	if err != nil {
		return err
	}

	printJSON(&resp)

	return nil
}

var revealCommand = cli.Command{
	Name:      "reveal",
	Usage:     "reveal the secret of an order",
	ArgsUsage: "id secret",
	Description: `
	Reveals the secret once the escrows of the order are final. Secrets
	starting with 0x are hex decoded, anything else is used as is.`,
	Action: reveal,
}

func reveal(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "reveal")
	}

	req := &fusiond.RevealRequest{
		OrderID: ctx.Args().First(),
		Secret:  ctx.Args().Get(1),
	}

	var resp order.Payload
	if err := getClient(ctx).post("/secrets", req, &resp); err != nil {
		return err
	}

	printJSON(&resp)

	return nil
}
