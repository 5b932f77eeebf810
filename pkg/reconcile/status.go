package reconcile

// MapStatus maps the provider's subscription-status vocabulary onto the
// canonical enum. Total: every input string yields exactly one value.
//
// Unrecognized and transient provider states ("incomplete",
// "incomplete_expired", "unpaid", anything future) map to trialing. Treating
// them as active would over-grant access; treating them as canceled would
// lock out a user mid-setup. A later event with a settled status corrects the
// row either way.
func MapStatus(providerStatus string) Status {
	switch providerStatus {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	default:
		return StatusTrialing
	}
}
