// Package payment implements the Payment Engine (spec §4.8): fee
// calculation, the PaymentIntent lifecycle, atomic settlement, revenue
// distribution, and reconciliation.
package payment

import "qinfinity/ports"

// Module identifies which per-module fee table a calculation uses.
type Module string

const (
	ModuleMail    Module = "mail"
	ModuleMarket  Module = "market"
	ModuleStorage Module = "storage"
)

// MailFeeInput is the mail module's fee calculation input.
type MailFeeInput struct {
	PerMessageBase  ports.Amount
	Recipients      int
	PerMBAttachment ports.Amount
	AttachmentMB    int64
	PriorityHigh    bool
	PriorityMult    uint32 // basis points, e.g. 15000 = 1.5x
	FreeTier        FreeTierPolicy
	UsageCount      int64 // transactions already consumed this period, before this one
}

// MarketFeeInput is the market module's fee calculation input.
type MarketFeeInput struct {
	RateBasisPoints uint32
	SalePrice       ports.Amount
	MintFee         ports.Amount
	IsMint          bool
	FreeTier        FreeTierPolicy
	UsageCount      int64
}

// StorageFeeInput is the storage module's fee calculation input.
type StorageFeeInput struct {
	UsedGB             int64
	FreeGB             int64
	PerGBMonth         ports.Amount
	BandwidthGB        int64
	PerGBBandwidth     ports.Amount
	PremiumFeatureFees ports.Amount
	FreeTier           FreeTierPolicy
	UsageCount         int64
}

// FreeTierPolicy bounds the number of transactions a module waives fees for
// entirely within a billing period, generalizing the teacher's
// native/fees DomainPolicy.FreeTierTxPerMonth counter-before-fee scheme
// from a single chain-wide fee domain to each of the mail/market/storage
// modules independently. Zero disables the free tier.
type FreeTierPolicy struct {
	TxPerPeriod int64
}

// FreeTierResult reports whether a fee calculation's free-tier allowance
// waived the computed fee, and how many transactions remain in the period.
type FreeTierResult struct {
	Applied   bool
	Remaining int64
}

// applyFreeTier mirrors native/fees.Apply's counter-before-fee ordering:
// the caller tracks and persists UsageCount across calls (this package
// holds no counter state of its own), and a transaction is waived when it
// falls strictly within the policy's per-period allowance.
func applyFreeTier(policy FreeTierPolicy, usageCount int64) FreeTierResult {
	if policy.TxPerPeriod <= 0 || usageCount >= policy.TxPerPeriod {
		return FreeTierResult{}
	}
	return FreeTierResult{Applied: true, Remaining: policy.TxPerPeriod - usageCount - 1}
}

// directly adapted from native/fees.Apply's shape: a pure function from
// input to a computed amount, with the caller responsible for persisting
// any resulting counters or balances.

// CalculateMailFee implements spec §4.8's mail rule: per-message base times
// recipients, plus per-MB attachment fee, times a priority multiplier when
// priority is high. Waived entirely when in.UsageCount still falls within
// in.FreeTier's per-period allowance.
func CalculateMailFee(in MailFeeInput) (ports.Amount, FreeTierResult) {
	freeTier := applyFreeTier(in.FreeTier, in.UsageCount)
	if freeTier.Applied {
		return ports.Zero(), freeTier
	}

	if in.Recipients <= 0 {
		in.Recipients = 1
	}
	base := in.PerMessageBase.MulBasisPoints(uint32(in.Recipients) * 10_000)
	attachment := ports.Zero()
	if in.AttachmentMB > 0 {
		attachment = in.PerMBAttachment.MulBasisPoints(uint32(in.AttachmentMB) * 10_000)
	}
	total := base.Add(attachment)
	if in.PriorityHigh {
		mult := in.PriorityMult
		if mult == 0 {
			mult = 10_000
		}
		total = total.MulBasisPoints(mult)
	}
	return total, freeTier
}

// CalculateMarketFee implements spec §4.8's market rule: a basis-point
// transaction fee on the sale price, with an optional mint fee added.
// Waived entirely when in.UsageCount still falls within in.FreeTier's
// per-period allowance.
func CalculateMarketFee(in MarketFeeInput) (ports.Amount, FreeTierResult) {
	freeTier := applyFreeTier(in.FreeTier, in.UsageCount)
	if freeTier.Applied {
		return ports.Zero(), freeTier
	}

	txnFee := in.SalePrice.MulBasisPoints(in.RateBasisPoints)
	if in.IsMint {
		txnFee = txnFee.Add(in.MintFee)
	}
	return txnFee, freeTier
}

// CalculateStorageFee implements spec §4.8's storage rule:
// max(0, usedGB-freeGB) times per-GB-month, plus bandwidth usage, plus any
// premium feature fees. Waived entirely when in.UsageCount still falls
// within in.FreeTier's per-period allowance; FreeGB remains the spec's own
// storage GB-allowance and applies independently of the per-transaction
// free tier.
func CalculateStorageFee(in StorageFeeInput) (ports.Amount, FreeTierResult) {
	freeTier := applyFreeTier(in.FreeTier, in.UsageCount)
	if freeTier.Applied {
		return ports.Zero(), freeTier
	}

	billableGB := in.UsedGB - in.FreeGB
	if billableGB < 0 {
		billableGB = 0
	}
	storageFee := ports.Zero()
	if billableGB > 0 {
		storageFee = in.PerGBMonth.MulBasisPoints(uint32(billableGB) * 10_000)
	}
	bandwidthFee := ports.Zero()
	if in.BandwidthGB > 0 {
		bandwidthFee = in.PerGBBandwidth.MulBasisPoints(uint32(in.BandwidthGB) * 10_000)
	}
	return storageFee.Add(bandwidthFee).Add(in.PremiumFeatureFees), freeTier
}
