// Command battlectl signs battle instructions and submits them to a node.
//
//	battlectl [flags] commit -slot 1 -amount 30
//	battlectl [flags] resolve
//	battlectl [flags] show
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/tolelom/tolbattle/config"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/rpc"
	"github.com/tolelom/tolbattle/wallet"
)

type options struct {
	node  string
	token string
	key   string
	p1    uint64
	p2    uint64
	bf    uint64
}

func main() {
	log.SetFlags(0)
	var o options
	flag.StringVar(&o.node, "node", "http://127.0.0.1:8545", "node JSON-RPC URL")
	flag.StringVar(&o.token, "token", os.Getenv("TOLBATTLE_RPC_AUTH_TOKEN"), "RPC bearer token")
	flag.StringVar(&o.key, "key", "player.key", "keystore path (password from TOLBATTLE_PASSWORD)")
	flag.Uint64Var(&o.p1, "p1", 1, "genesis id of player 1")
	flag.Uint64Var(&o.p2, "p2", 2, "genesis id of player 2")
	flag.Uint64Var(&o.bf, "battlefield", 1, "genesis id of the battlefield")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client := rpc.NewClient(o.node, o.token)

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "commit":
		err = runCommit(ctx, client, o, args)
	case "resolve":
		err = runResolve(ctx, client, o)
	case "show":
		err = runShow(ctx, client, o)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: battlectl [flags] commit -slot 1|2 -amount N | resolve | show\n")
	flag.PrintDefaults()
}

func (o options) accounts() []crypto.Pubkey {
	return []crypto.Pubkey{
		config.PlayerAddress(o.p1),
		config.PlayerAddress(o.p2),
		config.BattlefieldAddress(o.bf),
	}
}

func loadWallet(path string) (*wallet.Wallet, error) {
	priv, err := wallet.LoadKey(path, os.Getenv("TOLBATTLE_PASSWORD"))
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return wallet.New(priv), nil
}

func runCommit(ctx context.Context, c *rpc.Client, o options, args []string) error {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	slot := fs.Int("slot", 1, "player slot (1 or 2)")
	amount := fs.Uint64("amount", 0, "energy to convert into troops")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := loadWallet(o.key)
	if err != nil {
		return err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	tx, err := w.CommitTroops(chainID, *slot, o.accounts(), *amount)
	if err != nil {
		return err
	}
	receipt, err := c.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	log.Printf("committed tx %s", receipt.TxID)
	return runShow(ctx, c, o)
}

func runResolve(ctx context.Context, c *rpc.Client, o options) error {
	w, err := loadWallet(o.key)
	if err != nil {
		return err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	tx, err := w.Resolve(chainID, o.accounts())
	if err != nil {
		return err
	}
	receipt, err := c.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	log.Printf("resolved in tx %s", receipt.TxID)
	return runShow(ctx, c, o)
}

func runShow(ctx context.Context, c *rpc.Client, o options) error {
	accts := o.accounts()
	for i, addr := range accts[:2] {
		p, err := c.Player(ctx, addr.Hex())
		if err != nil {
			return fmt.Errorf("player %d: %w", i+1, err)
		}
		fmt.Printf("player%d  id=%-4d energy=%-8d troops=%-8d owner=%s\n", i+1, p.ID, p.Energy, p.Troops, p.Owner)
	}
	bf, err := c.Battlefield(ctx, accts[2].Hex())
	if err != nil {
		return fmt.Errorf("battlefield: %w", err)
	}
	fmt.Printf("battlefield id=%s  player1_troops=%d player2_troops=%d\n",
		strconv.FormatUint(bf.ID, 10), bf.Player1Troops, bf.Player2Troops)
	return nil
}
