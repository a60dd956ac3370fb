package payment

import (
	"context"

	"qinfinity/clockid"
	"qinfinity/errs"
	"qinfinity/ports"
)

// SplitEntry is one recipient's share of a module's revenue split table.
// RecipientIdentity resolves the concrete wallet identity to credit:
// FixedIdentity is used when set (e.g. a platform treasury), otherwise
// MetadataKey looks up the identity from the settling intent's metadata
// (e.g. the seller or original creator on a market sale).
type SplitEntry struct {
	Label         string
	FractionBps   uint32 // basis points of the total, out of 10_000.
	FixedIdentity string
	MetadataKey   string
}

// SplitTable is a module's revenue split configuration. Entries' fractions
// must sum to 10_000 basis points (1.0).
type SplitTable struct {
	Entries []SplitEntry
	// Market royalty override: when ResaleMetadataKey's value is "true" and
	// the seller and original-creator metadata values differ, RoyaltyBps of
	// the seller's own share is carved off and redirected to the creator
	// instead of the configured static split.
	ResaleMetadataKey          string
	SellerMetadataKey          string
	OriginalCreatorMetadataKey string
	SellerLabel                string
	RoyaltyBps                 uint32
}

// recipientIdentities resolves every entry's identity against metadata
// (including the royalty override's creator identity, if applicable) so
// the caller can acquire a lock for every wallet the distribution might
// touch before it starts crediting.
func (t SplitTable) recipientIdentities(metadata map[string]string) []string {
	identities := make([]string, 0, len(t.Entries)+1)
	for _, e := range t.Entries {
		if id := e.resolveIdentity(metadata); id != "" {
			identities = append(identities, id)
		}
	}
	if t.OriginalCreatorMetadataKey != "" {
		if id := metadata[t.OriginalCreatorMetadataKey]; id != "" {
			identities = append(identities, id)
		}
	}
	return identities
}

func (e SplitEntry) resolveIdentity(metadata map[string]string) string {
	if e.FixedIdentity != "" {
		return e.FixedIdentity
	}
	return metadata[e.MetadataKey]
}

// DistributionEntry is one recipient's computed share within a settled
// RevenueDistribution.
type DistributionEntry struct {
	RecipientLabel    string
	RecipientIdentity string
	Amount            ports.Amount
	Percentage        float64
}

// RevenueDistribution is the persisted record of how a settled intent's
// amount was split across recipients.
type RevenueDistribution struct {
	DistributionID string
	SourceIntentID string
	Module         Module
	Total          ports.Amount
	Entries        []DistributionEntry
}

// distributeRevenue computes each entry's share of total, applying the
// market royalty override when applicable, credits each resolved identity
// atomically with computing the distribution, and returns the persisted
// RevenueDistribution.
func distributeRevenue(
	ctx context.Context,
	wallet ports.WalletPort,
	ids clockid.IdService,
	intentID string,
	module Module,
	total ports.Amount,
	currency string,
	table SplitTable,
	metadata map[string]string,
	correlationID string,
) (RevenueDistribution, error) {
	entries := table.Entries
	royaltyIdentity := ""
	isResale := table.ResaleMetadataKey != "" && metadata[table.ResaleMetadataKey] == "true"
	if isResale {
		seller := metadata[table.SellerMetadataKey]
		creator := metadata[table.OriginalCreatorMetadataKey]
		if seller != "" && creator != "" && seller != creator {
			royaltyIdentity = creator
		}
	}

	distribution := RevenueDistribution{
		DistributionID: ids.NewID(),
		SourceIntentID: intentID,
		Module:         module,
		Total:          total,
	}

	for _, entry := range entries {
		share := total.MulBasisPoints(entry.FractionBps)
		identity := entry.resolveIdentity(metadata)

		if royaltyIdentity != "" && entry.Label == table.SellerLabel {
			royaltyShare := share.MulBasisPoints(table.RoyaltyBps)
			sellerShare := share.Sub(royaltyShare)
			if !sellerShare.IsValid() {
				return RevenueDistribution{}, errs.New(errs.KindInternal, correlationID, "payment: royalty exceeds seller share for intent %q", intentID)
			}

			if identity != "" && !sellerShare.IsZero() {
				if _, err := wallet.Credit(ctx, identity, sellerShare, currency); err != nil {
					return RevenueDistribution{}, errs.Wrap(errs.KindInternal, correlationID, err, "payment: credit seller %q", identity)
				}
			}
			distribution.Entries = append(distribution.Entries, DistributionEntry{
				RecipientLabel:    entry.Label,
				RecipientIdentity: identity,
				Amount:            sellerShare,
				Percentage:        basisPointsToFraction(entry.FractionBps),
			})

			if royaltyIdentity != "" && !royaltyShare.IsZero() {
				if _, err := wallet.Credit(ctx, royaltyIdentity, royaltyShare, currency); err != nil {
					return RevenueDistribution{}, errs.Wrap(errs.KindInternal, correlationID, err, "payment: credit creator royalty %q", royaltyIdentity)
				}
			}
			distribution.Entries = append(distribution.Entries, DistributionEntry{
				RecipientLabel:    "creator_royalty",
				RecipientIdentity: royaltyIdentity,
				Amount:            royaltyShare,
				Percentage:        0,
			})
			continue
		}

		if identity != "" && !share.IsZero() {
			if _, err := wallet.Credit(ctx, identity, share, currency); err != nil {
				return RevenueDistribution{}, errs.Wrap(errs.KindInternal, correlationID, err, "payment: credit %q", identity)
			}
		}
		distribution.Entries = append(distribution.Entries, DistributionEntry{
			RecipientLabel:    entry.Label,
			RecipientIdentity: identity,
			Amount:            share,
			Percentage:        basisPointsToFraction(entry.FractionBps),
		})
	}

	return distribution, nil
}

func basisPointsToFraction(bps uint32) float64 {
	return float64(bps) / 10_000
}
