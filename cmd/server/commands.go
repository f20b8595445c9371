package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"vcissuer/internal/catalog"
	"vcissuer/internal/ledger"
	ledgermetrics "vcissuer/internal/ledger/metrics"
)

// walletCommand drives the ledger's holder wallet, used to redeem offers
// against this or another issuer during onboarding.
var walletCommand = &cli.Command{
	Name:  "wallet",
	Usage: "redeem credential offers through the ledger wallet",
	Subcommands: []*cli.Command{
		{
			Name:  "request",
			Usage: "redeem a credential offer for a DID",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "offer", Required: true, Usage: "openid-credential-offer:// URI"},
				&cli.StringSliceFlag{Name: "type", Required: true, Usage: "requested credential type (repeatable)"},
				&cli.StringFlag{Name: "did", Required: true, Usage: "holder DID"},
				&cli.StringFlag{Name: "url", Usage: "issuer URL; defaults to ISSUER_URL"},
				&cli.StringFlag{Name: "external-addr", Usage: "holder's ledger address"},
				&cli.StringFlag{Name: "pin", Usage: "user pin for pre-authorized offers"},
			},
			Action: walletRequest,
		},
		{
			Name:  "resolve",
			Usage: "show the issuer and grants behind a credential offer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "offer", Required: true, Usage: "openid-credential-offer:// URI"},
			},
			Action: walletResolve,
		},
		{
			Name:  "deferred",
			Usage: "exchange an acceptance token for a deferred credential",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "issuer", Required: true, Usage: "issuer URL"},
				&cli.StringFlag{Name: "token", Required: true, Usage: "acceptance token"},
			},
			Action: walletDeferred,
		},
	},
}

func walletClient(cCtx *cli.Context) *ledger.Client {
	logger := setupLogger(cCtx)
	cfg := loadConfig(cCtx)
	return ledger.New(cfg.Ledger, ledger.WithLogger(logger), ledger.WithMetrics(ledgermetrics.New()))
}

func walletRequest(cCtx *cli.Context) error {
	cfg := loadConfig(cCtx)
	client := walletClient(cCtx)

	req := ledger.VCRequest{
		CredentialOffer: cCtx.String("offer"),
		VCType:          cCtx.StringSlice("type"),
		URL:             cfg.Issuer.BaseURL,
		DID:             cCtx.String("did"),
		ExternalAddr:    cCtx.String("external-addr"),
	}
	if cCtx.IsSet("url") {
		req.URL = cCtx.String("url")
	}
	if raw := cCtx.String("pin"); raw != "" {
		pin, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("pin must be numeric: %w", err)
		}
		req.PinCode = &pin
	}
	result, err := client.RequestVC(cCtx.Context, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func walletResolve(cCtx *cli.Context) error {
	client := walletClient(cCtx)
	result, err := client.ResolveCredentialOffer(cCtx.Context, cCtx.String("offer"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func walletDeferred(cCtx *cli.Context) error {
	client := walletClient(cCtx)

	result, err := client.RequestDeferredVC(cCtx.Context, cCtx.String("issuer"), cCtx.String("token"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

// whitelistCommand admits an entity to direct accreditation issuance.
var whitelistCommand = &cli.Command{
	Name:  "whitelist",
	Usage: "allow a DID to receive an accreditation through direct issuance",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "kind", Required: true, Usage: "accreditation credential type"},
		&cli.StringFlag{Name: "did", Required: true, Usage: "entity DID"},
		&cli.StringSliceFlag{Name: "grant", Usage: "backing grant id (repeatable); defaults to every grant of the kind"},
	},
	Action: whitelist,
}

func whitelist(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	cfg := loadConfig(cCtx)

	kind, ok := catalog.ParseAccreditationKind(cCtx.String("kind"))
	if !ok {
		return fmt.Errorf("unknown accreditation kind %q", cCtx.String("kind"))
	}
	var grantIDs []uuid.UUID
	for _, raw := range cCtx.StringSlice("grant") {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("grant %q: %w", raw, err)
		}
		grantIDs = append(grantIDs, id)
	}

	gw, err := assemble(cCtx.Context, cfg, logger)
	defer gw.close()
	if err != nil {
		return err
	}
	entry, err := gw.accreditation.Whitelist(cCtx.Context, kind, cCtx.String("did"), grantIDs)
	if err != nil {
		return err
	}
	return printJSON(entry)
}

// onboardingCommand inspects and re-queues ledger registration chains that
// ran out of retries.
var onboardingCommand = &cli.Command{
	Name:  "onboarding",
	Usage: "manage failed ledger registration chains",
	Subcommands: []*cli.Command{
		{
			Name:   "failures",
			Usage:  "list failed chains not yet retried",
			Action: onboardingFailures,
		},
		{
			Name:   "retry",
			Usage:  "schedule every failed chain again and wait for the queue to drain",
			Action: onboardingRetry,
		},
	},
}

func onboardingFailures(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	cfg := loadConfig(cCtx)

	gw, err := assemble(cCtx.Context, cfg, logger)
	defer gw.close()
	if err != nil {
		return err
	}
	pending, err := gw.failures.ListPendingFailures(cCtx.Context)
	if err != nil {
		return err
	}
	return printJSON(pending)
}

func onboardingRetry(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	cfg := loadConfig(cCtx)

	gw, err := assemble(cCtx.Context, cfg, logger)
	defer gw.close()
	if err != nil {
		return err
	}
	gw.pool.Start(cCtx.Context)
	retried, retryErr := gw.onboarding.RetryFailed(cCtx.Context)
	if err := gw.pool.Shutdown(cCtx.Context); err != nil {
		logger.Warn("onboarding pool did not drain", "error", err)
	}
	if retryErr != nil {
		return retryErr
	}
	// chains that failed again are back in the failure log
	pending, err := gw.failures.ListPendingFailures(cCtx.Context)
	if err != nil {
		return err
	}
	logger.Info("onboarding retry finished", "retried", retried, "still_failing", len(pending))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
