package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/holiman/uint256"
	"github.com/urfave/cli"
)

var permitFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "token",
		Usage: "the token the permit is for",
	},
	cli.StringFlag{
		Name:  "owner",
		Usage: "the owner of the tokens",
	},
	cli.StringFlag{
		Name:  "spender",
		Usage: "the address allowed to move the tokens",
	},
	cli.StringFlag{
		Name:  "amt",
		Usage: "the exact amount in base units",
	},
	cli.StringFlag{
		Name:  "encoding",
		Usage: "the digest encoding, legacy or tlv",
		Value: permit.EncodingLegacy.String(),
	},
}

var permitCommands = cli.Command{
	Name:  "permit",
	Usage: "create permit digests and signatures offline",
	Subcommands: []cli.Command{
		{
			Name:   "hash",
			Usage:  "print the digest of a permit",
			Flags:  permitFlags,
			Action: permitHash,
		},
		{
			Name:  "sign",
			Usage: "sign a permit",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "key",
					Usage: "the hex encoded private key",
				},
				cli.StringFlag{
					Name:  "scheme",
					Usage: "the signature scheme of the key",
					Value: permit.SchemeEd25519.String(),
				},
			}, permitFlags...),
			Action: permitSign,
		},
	},
}

func permitFromFlags(ctx *cli.Context) (*permit.Permit, error) {
	amount, err := uint256.FromDecimal(ctx.String("amt"))
	if err != nil {
		return nil, fmt.Errorf("invalid amt: %w", err)
	}

	return &permit.Permit{
		Token:   ctx.String("token"),
		Owner:   ctx.String("owner"),
		Spender: ctx.String("spender"),
		Amount:  amount,
	}, nil
}

func permitDigest(ctx *cli.Context, p *permit.Permit) (hashlock.Hash,
	error) {

	encoding, err := permit.ParseEncoding(ctx.String("encoding"))
	if err != nil {
		return hashlock.ZeroHash, err
	}

	return p.Digest(encoding)
}

func permitHash(ctx *cli.Context) error {
	p, err := permitFromFlags(ctx)
	if err != nil {
		return err
	}

	digest, err := permitDigest(ctx, p)
	if err != nil {
		return err
	}

	fmt.Println(digest)

	return nil
}

type signResponse struct {
	Digest    string `json:"digest"`
	Scheme    string `json:"scheme"`
	PubKey    string `json:"pubKey"`
	Signature string `json:"signature"`
}

func permitSign(ctx *cli.Context) error {
	p, err := permitFromFlags(ctx)
	if err != nil {
		return err
	}

	sig, err := signPermit(ctx, p)
	if err != nil {
		return err
	}

	digest, err := permitDigest(ctx, p)
	if err != nil {
		return err
	}

	printJSON(&signResponse{
		Digest:    digest.String(),
		Scheme:    sig.Scheme.String(),
		PubKey:    sig.PubKeyHex(),
		Signature: sig.SigHex(),
	})

	return nil
}

// signPermit signs the permit with the key given by the key and scheme
// flags.
func signPermit(ctx *cli.Context, p *permit.Permit) (*permit.Signature,
	error) {

	if !ctx.IsSet("key") {
		return nil, errors.New("key missing")
	}

	scheme, err := permit.ParseScheme(ctx.String("scheme"))
	if err != nil {
		return nil, err
	}

	key, err := permit.ParsePrivateKey(scheme, ctx.String("key"))
	if err != nil {
		return nil, err
	}

	digest, err := permitDigest(ctx, p)
	if err != nil {
		return nil, err
	}

	return permit.SignDigest(key, digest)
}

var secretCommands = cli.Command{
	Name:  "secret",
	Usage: "manage swap secrets",
	Subcommands: []cli.Command{
		{
			Name:   "new",
			Usage:  "create a random secret and its hash lock",
			Action: newSecret,
		},
		{
			Name:      "hash",
			Usage:     "print the hash lock of a secret",
			ArgsUsage: "secret",
			Action:    hashSecret,
		},
	},
}

type secretResponse struct {
	Secret     string `json:"secret"`
	SecretHash string `json:"secretHash"`
}

func newSecret(_ *cli.Context) error {
	secret, hash, err := hashlock.NewSecret()
	if err != nil {
		return err
	}

	printJSON(&secretResponse{
		Secret:     "0x" + hex.EncodeToString(secret),
		SecretHash: hash.String(),
	})

	return nil
}

func hashSecret(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "hash")
	}

	secret, err := hashlock.ParseSecret(ctx.Args().First())
	if err != nil {
		return err
	}

	fmt.Println(hashlock.ComputeHashLock(secret))

	return nil
}
