package topics

const (
	// Resultados de partidas (feed externo)
	FixtureResults = "fixture_results"

	// Cupons
	CouponPurchased       = "coupon_purchased"
	CouponSettleRequested = "coupon_settle_requested"
	CouponSettled         = "coupon_settled"

	// DLQs
	FixtureResultsDLQ        = "fixture_results_dlq"
	CouponSettleRequestedDLQ = "coupon_settle_requested_dlq"
)
