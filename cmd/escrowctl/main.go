// escrowctl drives the lease escrow protocol from the command line, against
// the same contract and marketplace backend as the gateway.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/subletsquare/lease-escrow-service/internal/activation"
	"github.com/subletsquare/lease-escrow-service/internal/agreement"
	"github.com/subletsquare/lease-escrow-service/internal/chain"
	"github.com/subletsquare/lease-escrow-service/internal/directory"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/model"
	"github.com/subletsquare/lease-escrow-service/internal/units"
)

type env struct {
	account    *chain.Account
	backend    *chain.Backend
	dispatcher *escrow.Dispatcher
	reader     *escrow.Reader
	users      *directory.Client
	agreements *agreement.Client
}

func connect(ctx context.Context) (*env, error) {
	rpcURL := getenv("ESCROW_RPC_URL", "http://localhost:8545")
	contractAddr := getenv("ESCROW_CONTRACT", "0x6D44965c235e11b9D83393D2f5697fa8ca47e477")
	backendURL := getenv("ESCROW_BACKEND_URL", "http://localhost:3000")

	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	account := chain.NewAccount()
	if keyFile := os.Getenv("ESCROW_KEY_FILE"); keyFile != "" {
		if err := account.ConnectFromFile(keyFile); err != nil {
			return nil, err
		}
	} else if hexKey := os.Getenv("ESCROW_KEY"); hexKey != "" {
		if err := account.ConnectHex(hexKey); err != nil {
			return nil, err
		}
	}

	backend, err := chain.Dial(ctx, rpcURL, common.HexToAddress(contractAddr), account)
	if err != nil {
		return nil, err
	}
	return &env{
		account:    account,
		backend:    backend,
		dispatcher: escrow.NewDispatcher(backend, account),
		reader:     escrow.NewReader(backend),
		users:      directory.New(backendURL),
		agreements: agreement.New(backendURL),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLeaseID(arg string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(arg, 10)
	if !ok {
		return nil, fmt.Errorf("invalid lease id %q", arg)
	}
	return id, nil
}

func parseAmount(arg string) (*big.Int, error) {
	subunits, err := units.ParseDisplayAmount(arg)
	if err != nil {
		return nil, err
	}
	return units.ToBaseUnits(subunits)
}

func printLease(l model.Lease) {
	fmt.Printf("lease %s  rent %s  deposit %s/%s  payments %d  %s  next: %s\n",
		l.LeaseID,
		units.FromBaseUnits(l.MonthlyRent),
		units.FromBaseUnits(l.DepositHeld),
		units.FromBaseUnits(l.SecurityDeposit),
		len(l.PaymentTimestamps),
		escrow.StatusLabel(l),
		escrow.NextAction(l))
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:   "escrowctl",
		Short: "Operate the lease escrow contract",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; environment variables win either way.
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	keyImportCmd := &cobra.Command{
		Use:   "key-import <hex-key>",
		Short: "Store a signing key, encrypted at rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if err := chain.SaveKeyFile(out, args[0]); err != nil {
				return err
			}
			fmt.Printf("key written to %s\n", out)
			return nil
		},
	}
	keyImportCmd.Flags().String("out", "escrow-key.json", "Output key file")

	var activateWait bool
	activateCmd := &cobra.Command{
		Use:   "activate <agreement-id>",
		Short: "Create the on-chain lease for a fully-signed agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			ag, err := e.agreements.Get(ctx, args[0])
			if err != nil {
				return err
			}
			orch := activation.NewOrchestrator(e.users, e.dispatcher, nil)
			res, err := orch.Activate(ctx, ag)
			if err != nil {
				return err
			}
			fmt.Printf("lease key: %s\ntx: %s\n", res.LeaseKey, res.TxHash.Hex())
			if !activateWait {
				return nil
			}
			owner, err := e.account.Current(ctx)
			if err != nil {
				return err
			}
			lease, err := e.reader.WaitForLease(ctx, owner, res.LeaseKey, 12, 5*time.Second)
			if err != nil {
				return err
			}
			fmt.Printf("confirmed: %s\n", escrow.StatusLabel(*lease))
			return nil
		},
	}
	activateCmd.Flags().BoolVar(&activateWait, "wait", false, "Poll until the lease is observable on chain")

	leasesCmd := &cobra.Command{
		Use:   "leases <address>",
		Short: "List leases for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			addr := common.HexToAddress(args[0])
			role, _ := cmd.Flags().GetString("role")
			var leases []model.Lease
			if role == "owner" {
				leases, err = e.reader.LeasesByOwner(ctx, addr)
			} else {
				leases, err = e.reader.LeasesByTenant(ctx, addr)
			}
			if err != nil {
				return err
			}
			for _, l := range leases {
				printLease(l)
			}
			if len(leases) == 0 {
				fmt.Println("no leases")
			}
			return nil
		},
	}
	leasesCmd.Flags().String("role", "tenant", "Account role (tenant or owner)")

	paymentsCmd := &cobra.Command{
		Use:   "payments <address>",
		Short: "List rent payments made by a tenant account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			leases, err := e.reader.LeasesByTenant(ctx, common.HexToAddress(args[0]))
			if err != nil {
				return err
			}
			items := escrow.Payments(leases)
			for _, p := range items {
				fmt.Printf("%s  %s  %s  %s\n", p.Date.Format("2006-01-02"), p.Property, units.FromBaseUnits(p.Amount), p.Status)
			}
			if len(items) == 0 {
				fmt.Println("no payments")
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		keyImportCmd,
		activateCmd,
		leasesCmd,
		paymentsCmd,
		amountCommand("fund-deposit", "Pay the security deposit into escrow", func(ctx context.Context, e *env, id, amount *big.Int) (common.Hash, error) {
			return e.dispatcher.FundSecurityDeposit(ctx, id, amount)
		}),
		amountCommand("pay-rent", "Pay one month of rent into escrow", func(ctx context.Context, e *env, id, amount *big.Int) (common.Hash, error) {
			return e.dispatcher.DepositRent(ctx, id, amount)
		}),
		amountCommand("withdraw-rent", "Withdraw accumulated rent to the owner", func(ctx context.Context, e *env, id, amount *big.Int) (common.Hash, error) {
			return e.dispatcher.WithdrawRent(ctx, id, amount)
		}),
		amountCommand("return-deposit", "Return held deposit funds to the tenant", func(ctx context.Context, e *env, id, amount *big.Int) (common.Hash, error) {
			return e.dispatcher.ReturnSecurityDeposit(ctx, id, amount)
		}),
		editCommand(),
		endCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func amountCommand(use, short string, op func(ctx context.Context, e *env, id, amount *big.Int) (common.Hash, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <lease-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseLeaseID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			txHash, err := op(ctx, e, id, amount)
			if err != nil {
				return err
			}
			fmt.Printf("tx: %s\n", txHash.Hex())
			return nil
		},
	}
}

func editCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <lease-id> <monthly-rent> <security-deposit> <start-date>",
		Short: "Overwrite the mutable lease terms",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseLeaseID(args[0])
			if err != nil {
				return err
			}
			rent, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			deposit, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			ag := model.Agreement{StartDate: args[3]}
			start, err := ag.Start()
			if err != nil {
				return err
			}
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			txHash, err := e.dispatcher.EditLease(ctx, id, rent, deposit, start.Unix())
			if err != nil {
				return err
			}
			fmt.Printf("tx: %s\n", txHash.Hex())
			return nil
		},
	}
}

func endCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end <lease-id>",
		Short: "End a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseLeaseID(args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			txHash, err := e.dispatcher.EndLease(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("tx: %s\n", txHash.Hex())
			return nil
		},
	}
}
