// internal/model/plan.go
package model

const DefaultPlan = "starter"

type Plan struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	PriceMonthly int    `json:"price_monthly"`
	Minutes      int    `json:"minutes"`
	SMS          int    `json:"sms"`
}

// Overage rates in major currency units per unit consumed.
const (
	OverageRatePerMinute = 0.12
	OverageRatePerSMS    = 0.02
)

var Plans = map[string]Plan{
	"starter": {Key: "starter", Name: "Starter", PriceMonthly: 49, Minutes: 500, SMS: 1000},
	"pro":     {Key: "pro", Name: "Pro", PriceMonthly: 99, Minutes: 1000, SMS: 3000},
	"team10":  {Key: "team10", Name: "Team 10", PriceMonthly: 299, Minutes: 8000, SMS: 20000},
}

// PlanFor resolves a plan key, falling back to the starter plan.
func PlanFor(key string) Plan {
	if p, ok := Plans[key]; ok {
		return p
	}
	return Plans[DefaultPlan]
}
