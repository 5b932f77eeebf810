package reconcile

// Outcome classifies what HandleEvent did with an event. Every outcome except
// a signature failure upstream is acknowledged to the provider with a 2xx.
type Outcome string

const (
	// OutcomeApplied means a handler wrote the canonical row.
	OutcomeApplied Outcome = "applied"

	// OutcomeIgnored means the event type has no handler, or the event does
	// not concern a subscription. Intentional no-op.
	OutcomeIgnored Outcome = "ignored"

	// OutcomeDuplicate means the deduper had already seen this event id.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeSkipped means a handler declined to mutate: malformed event,
	// unresolvable owner, or a swallowed repository failure. Err carries the
	// cause for logging; it is never surfaced to the provider.
	OutcomeSkipped Outcome = "skipped"
)

// Result is what HandleEvent returns instead of raising errors for control
// flow. Subscription is the canonical snapshot after an applied write, nil
// otherwise.
type Result struct {
	Outcome      Outcome
	Subscription *Subscription
	Err          error
}

func applied(sub *Subscription) Result {
	return Result{Outcome: OutcomeApplied, Subscription: sub}
}

func ignored() Result {
	return Result{Outcome: OutcomeIgnored}
}

func skipped(err error) Result {
	return Result{Outcome: OutcomeSkipped, Err: err}
}
