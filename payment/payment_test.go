package payment

import (
	"context"
	"testing"
	"time"

	"qinfinity/clockid"
	"qinfinity/ports"
	"qinfinity/ports/sandbox"
)

func TestCalculateMailFeeAppliesRecipientsAttachmentAndPriority(t *testing.T) {
	fee, freeTier := CalculateMailFee(MailFeeInput{
		PerMessageBase:  ports.NewAmount(100),
		Recipients:      3,
		PerMBAttachment: ports.NewAmount(10),
		AttachmentMB:    5,
		PriorityHigh:    true,
		PriorityMult:    15_000, // 1.5x
	})
	// base: 100*3=300, attachment: 10*5=50, subtotal=350, *1.5=525
	if fee.Cmp(ports.NewAmount(525)) != 0 {
		t.Fatalf("expected fee 525, got %s", fee.String())
	}
	if freeTier.Applied {
		t.Fatalf("expected no free tier applied without a configured policy")
	}
}

func TestCalculateMailFeeWaivedWithinFreeTierAllowance(t *testing.T) {
	fee, freeTier := CalculateMailFee(MailFeeInput{
		PerMessageBase: ports.NewAmount(100),
		Recipients:     1,
		FreeTier:       FreeTierPolicy{TxPerPeriod: 3},
		UsageCount:     2,
	})
	if !fee.IsZero() {
		t.Fatalf("expected waived fee, got %s", fee.String())
	}
	if !freeTier.Applied || freeTier.Remaining != 0 {
		t.Fatalf("expected free tier applied with 0 remaining, got %+v", freeTier)
	}
}

func TestCalculateMailFeeChargesOnceFreeTierExhausted(t *testing.T) {
	fee, freeTier := CalculateMailFee(MailFeeInput{
		PerMessageBase: ports.NewAmount(100),
		Recipients:     1,
		FreeTier:       FreeTierPolicy{TxPerPeriod: 3},
		UsageCount:     3,
	})
	if fee.IsZero() {
		t.Fatalf("expected a charged fee once the free tier is exhausted")
	}
	if freeTier.Applied {
		t.Fatalf("expected free tier not applied once exhausted")
	}
}

func TestCalculateMarketFeeAddsMintFeeWhenMinting(t *testing.T) {
	fee, freeTier := CalculateMarketFee(MarketFeeInput{
		RateBasisPoints: 250, // 2.5%
		SalePrice:       ports.NewAmount(10_000),
		MintFee:         ports.NewAmount(50),
		IsMint:          true,
	})
	// txn fee: 10000*0.025=250, + mint fee 50 = 300
	if fee.Cmp(ports.NewAmount(300)) != 0 {
		t.Fatalf("expected fee 300, got %s", fee.String())
	}
	if freeTier.Applied {
		t.Fatalf("expected no free tier applied without a configured policy")
	}
}

func TestCalculateStorageFeeChargesOnlyBillableUsage(t *testing.T) {
	fee, _ := CalculateStorageFee(StorageFeeInput{
		UsedGB:         20,
		FreeGB:         5,
		PerGBMonth:     ports.NewAmount(2),
		BandwidthGB:    10,
		PerGBBandwidth: ports.NewAmount(1),
	})
	// billable: 15*2=30, bandwidth: 10*1=10, total=40
	if fee.Cmp(ports.NewAmount(40)) != 0 {
		t.Fatalf("expected fee 40, got %s", fee.String())
	}
}

func TestCalculateStorageFeeFloorsAtZeroWhenUnderFreeTier(t *testing.T) {
	fee, _ := CalculateStorageFee(StorageFeeInput{UsedGB: 2, FreeGB: 5, PerGBMonth: ports.NewAmount(2)})
	if !fee.IsZero() {
		t.Fatalf("expected zero fee under the storage GB allowance, got %s", fee.String())
	}
}

func newTestEngine(t *testing.T) (*Engine, *sandbox.WalletPort) {
	t.Helper()
	ids := clockid.NewSequentialIDService("pay")
	clock := clockid.NewFixedClock(time.Unix(0, 0))
	wallet := sandbox.NewWalletPort(ids)
	bus := sandbox.NewEventBusPort()

	splits := map[Module]SplitTable{
		ModuleMarket: {
			Entries: []SplitEntry{
				{Label: "platform", FractionBps: 1_000, FixedIdentity: "platform-treasury"},
				{Label: "seller", FractionBps: 9_000, MetadataKey: "seller_identity"},
			},
			ResaleMetadataKey:          "resale",
			SellerMetadataKey:          "seller_identity",
			OriginalCreatorMetadataKey: "original_creator",
			SellerLabel:                "seller",
			RoyaltyBps:                 1_000,
		},
	}
	return NewEngine(wallet, bus, ids, clock, splits), wallet
}

func TestEngineCreateAndSettleIntentSucceeds(t *testing.T) {
	ctx := context.Background()
	engine, wallet := newTestEngine(t)
	wallet.Seed("buyer-1", ports.NewAmount(10_000), "USD")

	intent, err := engine.CreateIntent(ctx, "buyer-1", ports.NewAmount(1_000), "USD", ModuleMarket, "nft-purchase", map[string]string{
		"seller_identity": "seller-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Status != IntentPending {
		t.Fatalf("expected PENDING status, got %s", intent.Status)
	}

	settled, dist, err := engine.Settle(ctx, intent.IntentID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != IntentSettled {
		t.Fatalf("expected SETTLED status, got %s", settled.Status)
	}
	if settled.TransactionID == "" {
		t.Fatalf("expected a transaction id to be assigned")
	}
	if dist.Total.Cmp(ports.NewAmount(1_000)) != 0 {
		t.Fatalf("expected distribution total 1000, got %s", dist.Total.String())
	}

	sellerBalance, _ := wallet.Balance(ctx, "seller-1", "USD")
	if sellerBalance.Cmp(ports.NewAmount(900)) != 0 {
		t.Fatalf("expected seller balance 900, got %s", sellerBalance.String())
	}
	platformBalance, _ := wallet.Balance(ctx, "platform-treasury", "USD")
	if platformBalance.Cmp(ports.NewAmount(100)) != 0 {
		t.Fatalf("expected platform balance 100, got %s", platformBalance.String())
	}
}

func TestEngineSettleFailsOnInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	intent, err := engine.CreateIntent(ctx, "buyer-2", ports.NewAmount(5_000), "USD", ModuleMarket, "nft-purchase", map[string]string{
		"seller_identity": "seller-2",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if _, _, err := engine.Settle(ctx, intent.IntentID); err == nil {
		t.Fatalf("expected insufficient funds error")
	}
}

func TestEngineSettleAppliesRoyaltyOverrideOnResale(t *testing.T) {
	ctx := context.Background()
	engine, wallet := newTestEngine(t)
	wallet.Seed("buyer-3", ports.NewAmount(10_000), "USD")

	intent, err := engine.CreateIntent(ctx, "buyer-3", ports.NewAmount(1_000), "USD", ModuleMarket, "nft-resale", map[string]string{
		"seller_identity":  "reseller-1",
		"resale":           "true",
		"original_creator": "creator-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	_, dist, err := engine.Settle(ctx, intent.IntentID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	var sawRoyalty bool
	for _, e := range dist.Entries {
		if e.RecipientLabel == "creator_royalty" {
			sawRoyalty = true
			if e.RecipientIdentity != "creator-1" {
				t.Fatalf("expected royalty to go to original creator, got %s", e.RecipientIdentity)
			}
		}
	}
	if !sawRoyalty {
		t.Fatalf("expected a creator royalty entry on resale")
	}

	creatorBalance, _ := wallet.Balance(ctx, "creator-1", "USD")
	if creatorBalance.IsZero() {
		t.Fatalf("expected creator to be credited a royalty")
	}
	resellerBalance, _ := wallet.Balance(ctx, "reseller-1", "USD")
	if resellerBalance.Cmp(ports.NewAmount(810)) != 0 {
		t.Fatalf("expected reseller balance 810 after royalty carve-out, got %s", resellerBalance.String())
	}
}

func TestEngineExpirePastDeadlineIntents(t *testing.T) {
	ctx := context.Background()
	ids := clockid.NewSequentialIDService("pay")
	clock := clockid.NewFixedClock(time.Unix(0, 0))
	wallet := sandbox.NewWalletPort(ids)
	bus := sandbox.NewEventBusPort()
	engine := NewEngine(wallet, bus, ids, clock, nil)

	intent, err := engine.CreateIntent(ctx, "buyer-4", ports.NewAmount(100), "USD", ModuleMail, "message", nil)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	expired := engine.Expire(ctx, intent.CreatedAt.Add(2*time.Hour))
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired intent, got %d", len(expired))
	}
	if expired[0].Status != IntentExpired {
		t.Fatalf("expected EXPIRED status, got %s", expired[0].Status)
	}

	stored, _ := engine.Get(intent.IntentID)
	if stored.Status != IntentExpired {
		t.Fatalf("expected stored intent to be EXPIRED, got %s", stored.Status)
	}
}

func TestReconcileBalancesSettledAmountsAgainstDistributions(t *testing.T) {
	ctx := context.Background()
	engine, wallet := newTestEngine(t)
	wallet.Seed("buyer-5", ports.NewAmount(10_000), "USD")

	intent, err := engine.CreateIntent(ctx, "buyer-5", ports.NewAmount(1_000), "USD", ModuleMarket, "nft-purchase", map[string]string{
		"seller_identity": "seller-5",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	_, dist, err := engine.Settle(ctx, intent.IntentID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	report := Reconcile(engine.All(), []RevenueDistribution{dist}, ReconcileFilter{})
	if !report.Balanced {
		t.Fatalf("expected reconciliation to balance, settled=%s distributed=%s", report.TotalSettled.String(), report.TotalDistributed.String())
	}
}
