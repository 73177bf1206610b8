package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	FeeDeposits       Counter
	FeeBackdates      Counter
	EscrowCredits     Counter
	FundsConsumed     Counter
	BurnsExecuted     Counter
	BurnsRejected     Counter
	TransfersAllowed  Counter
	TransfersRejected Counter
	AllowanceTopUps   Counter
	AdminChanges      Counter
	FeedReconnects    Counter
	SinkFailures      Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		FeeDeposits:       n,
		FeeBackdates:      n,
		EscrowCredits:     n,
		FundsConsumed:     n,
		BurnsExecuted:     n,
		BurnsRejected:     n,
		TransfersAllowed:  n,
		TransfersRejected: n,
		AllowanceTopUps:   n,
		AdminChanges:      n,
		FeedReconnects:    n,
		SinkFailures:      n,
	}
}
