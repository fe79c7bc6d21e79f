package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/config"
	"github.com/stake-plus/escrow-market/src/api/escrow"
)

var (
	rpcFlag     = flag.String("rpc", "", "RPC endpoint (defaults to RPC_URL)")
	escrowFlag  = flag.String("escrow", "", "Escrow contract address (defaults to ESCROW_ADDRESS)")
	idsFlag     = flag.String("ids", "1", "Comma-separated on-chain contract ids")
	mirrorFlag  = flag.String("mirror", "", "Mirror status to reconcile against, e.g. funded")
	timeoutFlag = flag.Duration("timeout", 20*time.Second, "Per-contract timeout")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	_ = godotenv.Load()

	cc, err := config.LoadChain()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cc.RPCURL = pickFirst(*rpcFlag, cc.RPCURL)
	cc.EscrowAddress = pickFirst(*escrowFlag, cc.EscrowAddress)
	if !cc.Enabled() {
		log.Fatal("rpc endpoint and escrow address are required")
	}

	var mirror escrow.Status
	if *mirrorFlag != "" {
		mirror = escrow.Status(strings.ToLower(*mirrorFlag))
		if !mirror.Valid() {
			log.Fatalf("unknown mirror status %q", *mirrorFlag)
		}
	}

	ids, err := parseIDs(*idsFlag)
	if err != nil {
		log.Fatalf("ids: %v", err)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	client, err := chain.Dial(dialCtx, cc)
	cancel()
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer client.Close()

	fmt.Printf("escrow %s via %s (resolver key: %t)\n", cc.EscrowAddress, cc.RPCURL, client.CanTransact())
	failed := 0
	for _, id := range ids {
		if err := inspect(client, id, mirror); err != nil {
			fmt.Printf("#%d ❌ %v\n", id, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func inspect(client *chain.Client, id uint64, mirror escrow.Status) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	start := time.Now()
	oc, err := client.GetContract(ctx, id)
	if err != nil {
		return err
	}
	status, err := escrow.DecodeOnChain(oc.Status)
	if err != nil {
		return err
	}

	fmt.Printf("#%d ✅ (%.1fs)\n", id, time.Since(start).Seconds())
	fmt.Printf("  status      %s (%d)\n", status, oc.Status)
	fmt.Printf("  client      %s signed=%t\n", short(oc.Client), oc.ClientSigned)
	fmt.Printf("  freelancer  %s signed=%t\n", short(oc.Freelancer), oc.FreelancerSigned)
	if oc.Amount != nil {
		fmt.Printf("  amount      %s ETH\n", decimal.NewFromBigInt(oc.Amount, -18).String())
	}
	if oc.WorkHash != "" {
		fmt.Printf("  work        %s\n", oc.WorkHash)
	}
	if mirror != "" {
		next, outcome := escrow.Reconcile(mirror, status, false)
		fmt.Printf("  reconcile   %s -> %s (%s)\n", mirror, next, outcome)
	}
	return nil
}

func parseIDs(raw string) ([]uint64, error) {
	var out []uint64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q", p)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return out, nil
}

func short(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

func pickFirst(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
