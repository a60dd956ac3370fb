package payment

import "qinfinity/ports"

// ReconcileFilter bounds a reconciliation query to a time range and an
// optional module.
type ReconcileFilter struct {
	From   int64  // unix nanos, inclusive
	To     int64  // unix nanos, exclusive
	Module Module // empty means every module
}

// ReconcileReport totals settled-intent amounts and distribution amounts
// by module and by recipient, for verifying spec §4.8's invariant:
// Σ(distribution.total) == Σ(settled-intents.amount) over the same range.
type ReconcileReport struct {
	TotalSettled     ports.Amount
	TotalDistributed ports.Amount
	ByModule         map[Module]ports.Amount
	ByRecipient      map[string]ports.Amount
	Balanced         bool
}

// Reconcile aggregates intents and distributions matching filter.
func Reconcile(intents []Intent, distributions []RevenueDistribution, filter ReconcileFilter) ReconcileReport {
	report := ReconcileReport{
		TotalSettled:     ports.Zero(),
		TotalDistributed: ports.Zero(),
		ByModule:         make(map[Module]ports.Amount),
		ByRecipient:      make(map[string]ports.Amount),
	}

	settledByIntent := make(map[string]struct{})
	for _, intent := range intents {
		if intent.Status != IntentSettled {
			continue
		}
		if !inRange(intent.SettledAt.UnixNano(), filter) {
			continue
		}
		if filter.Module != "" && intent.Module != filter.Module {
			continue
		}
		report.TotalSettled = report.TotalSettled.Add(intent.Amount)
		report.ByModule[intent.Module] = report.ByModule[intent.Module].Add(intent.Amount)
		settledByIntent[intent.IntentID] = struct{}{}
	}

	for _, dist := range distributions {
		if _, ok := settledByIntent[dist.SourceIntentID]; !ok {
			continue
		}
		report.TotalDistributed = report.TotalDistributed.Add(dist.Total)
		for _, entry := range dist.Entries {
			if entry.RecipientIdentity == "" {
				continue
			}
			report.ByRecipient[entry.RecipientIdentity] = report.ByRecipient[entry.RecipientIdentity].Add(entry.Amount)
		}
	}

	report.Balanced = report.TotalSettled.Cmp(report.TotalDistributed) == 0
	return report
}

func inRange(unixNano int64, filter ReconcileFilter) bool {
	if filter.From != 0 && unixNano < filter.From {
		return false
	}
	if filter.To != 0 && unixNano >= filter.To {
		return false
	}
	return true
}
