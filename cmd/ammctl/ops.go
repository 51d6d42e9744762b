package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"poolLedger/internal/amm"
)

// receipt is what a committed operation prints.
type receipt struct {
	Event     string            `json:"event"`
	Data      interface{}       `json:"data"`
	Pool      amm.Pool          `json:"pool"`
	Transfers []amm.Transfer    `json:"transfers,omitempty"`
	Shares    []amm.ShareChange `json:"shares,omitempty"`
}

func newReceipt(out amm.Outcome) receipt {
	return receipt{
		Event:     out.Event.Name,
		Data:      out.Event.Data,
		Pool:      out.Pool,
		Transfers: out.Transfers,
		Shares:    out.Shares,
	}
}

// withApp opens the ledger for one command and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// poolAndCaller reads the --pool and --caller flags.
func poolAndCaller(cmd *cobra.Command) (common.Hash, common.Address, error) {
	poolInput, _ := cmd.Flags().GetString("pool")
	callerInput, _ := cmd.Flags().GetString("caller")

	id, err := parsePoolID(poolInput)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	caller, err := parseAddress("caller", callerInput)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	return id, caller, nil
}

func runInit(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	assetAInput, _ := flags.GetString("asset-a")
	assetBInput, _ := flags.GetString("asset-b")
	adminInput, _ := flags.GetString("admin")
	feeBps, _ := flags.GetUint16("fee-bps")
	protocolFeeBps, _ := flags.GetUint16("protocol-fee-bps")

	assetA, err := parseAddress("asset-a", assetAInput)
	if err != nil {
		return err
	}
	assetB, err := parseAddress("asset-b", assetBInput)
	if err != nil {
		return err
	}
	admin, err := parseAddress("admin", adminInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.CreatePool(ctx, amm.InitParams{
			AssetA:         assetA,
			AssetB:         assetB,
			FeeBps:         feeBps,
			ProtocolFeeBps: protocolFeeBps,
			Admin:          admin,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

func runCredit(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	assetInput, _ := flags.GetString("asset")
	custodyInput, _ := flags.GetString("custody")
	amount, _ := flags.GetUint64("amount")

	asset, err := parseAddress("asset", assetInput)
	if err != nil {
		return err
	}
	custody, err := parseAddress("custody", custodyInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.ledger.Credit(ctx, asset, custody, amount); err != nil {
			return err
		}
		balance, err := a.ledger.Balance(ctx, asset, custody)
		if err != nil {
			return err
		}
		return printJSON(cmd, balanceView{Asset: asset, Custody: custody, Amount: balance})
	})
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	id, caller, err := poolAndCaller(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	amountA, _ := flags.GetUint64("amount-a")
	amountB, _ := flags.GetUint64("amount-b")
	minShares, _ := flags.GetUint64("min-shares")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.Deposit(ctx, id, amm.DepositRequest{
			Depositor:      caller,
			AmountADesired: amountA,
			AmountBDesired: amountB,
			MinShareOut:    minShares,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	id, caller, err := poolAndCaller(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	shares, _ := flags.GetUint64("shares")
	minA, _ := flags.GetUint64("min-a")
	minB, _ := flags.GetUint64("min-b")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.Withdraw(ctx, id, amm.WithdrawRequest{
			Owner:       caller,
			ShareAmount: shares,
			MinAOut:     minA,
			MinBOut:     minB,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

func runSwap(cmd *cobra.Command, _ []string) error {
	id, caller, err := poolAndCaller(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	amountIn, _ := flags.GetUint64("amount-in")
	minOut, _ := flags.GetUint64("min-out")
	directionInput, _ := flags.GetString("direction")
	dir, err := amm.ParseDirection(directionInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.Swap(ctx, id, amm.SwapRequest{
			Trader:       caller,
			AmountIn:     amountIn,
			MinAmountOut: minOut,
			Direction:    dir,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

func runQuote(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	poolInput, _ := flags.GetString("pool")
	amountIn, _ := flags.GetUint64("amount-in")
	directionInput, _ := flags.GetString("direction")

	id, err := parsePoolID(poolInput)
	if err != nil {
		return err
	}
	dir, err := amm.ParseDirection(directionInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		quote, err := a.ledger.QuoteSwap(ctx, id, amountIn, dir)
		if err != nil {
			return err
		}
		return printJSON(cmd, quote)
	})
}

func runCollectFees(cmd *cobra.Command, _ []string) error {
	id, caller, err := poolAndCaller(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	amountA, _ := flags.GetUint64("amount-a")
	amountB, _ := flags.GetUint64("amount-b")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.WithdrawProtocolFees(ctx, id, amm.FeeWithdrawRequest{
			Caller:     caller,
			RequestedA: amountA,
			RequestedB: amountB,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

func runPause(cmd *cobra.Command, _ []string) error {
	id, caller, err := poolAndCaller(cmd)
	if err != nil {
		return err
	}
	paused, _ := cmd.Flags().GetBool("paused")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.ledger.SetPaused(ctx, id, caller, paused)
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceipt(out))
	})
}

type balanceView struct {
	Asset   common.Address `json:"asset"`
	Custody common.Address `json:"custody"`
	Amount  uint64         `json:"amount"`
}

type poolView struct {
	Pool   amm.Pool        `json:"pool"`
	Owner  *common.Address `json:"owner,omitempty"`
	Shares *uint64         `json:"shares,omitempty"`
}

func runShow(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	poolInput, _ := flags.GetString("pool")
	ownerInput, _ := flags.GetString("owner")
	assetInput, _ := flags.GetString("asset")
	custodyInput, _ := flags.GetString("custody")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if assetInput != "" || custodyInput != "" {
			asset, err := parseAddress("asset", assetInput)
			if err != nil {
				return err
			}
			custody, err := parseAddress("custody", custodyInput)
			if err != nil {
				return err
			}
			amount, err := a.ledger.Balance(ctx, asset, custody)
			if err != nil {
				return err
			}
			return printJSON(cmd, balanceView{Asset: asset, Custody: custody, Amount: amount})
		}

		if poolInput == "" {
			pools, err := a.ledger.Pools(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, pools)
		}

		id, err := parsePoolID(poolInput)
		if err != nil {
			return err
		}
		pool, err := a.ledger.Pool(ctx, id)
		if err != nil {
			return err
		}
		view := poolView{Pool: pool}
		if ownerInput != "" {
			owner, err := parseAddress("owner", ownerInput)
			if err != nil {
				return err
			}
			shares, err := a.ledger.ShareBalance(ctx, id, owner)
			if err != nil {
				return err
			}
			view.Owner, view.Shares = &owner, &shares
		}
		return printJSON(cmd, view)
	})
}

type eventView struct {
	Version   uint64          `json:"version"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
}

func runEvents(cmd *cobra.Command, _ []string) error {
	poolInput, _ := cmd.Flags().GetString("pool")
	id, err := parsePoolID(poolInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		records, err := a.ledger.Events(ctx, id)
		if err != nil {
			return err
		}
		views := make([]eventView, 0, len(records))
		for _, rec := range records {
			views = append(views, eventView{
				Version:   rec.Version,
				EventName: rec.EventName,
				Timestamp: rec.Timestamp,
				Decoded:   rec.Decoded,
			})
		}
		return printJSON(cmd, views)
	})
}
