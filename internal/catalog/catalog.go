// Package catalog holds the static subscription tier and feature catalog.
// It is read-only at runtime; every resolved entitlement copies its feature
// set from here.
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is an ordered subscription level.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

var tierRank = map[Tier]int{
	TierBasic:   0,
	TierPremium: 1,
	TierVIP:     2,
}

// Rank returns the tier's position in the total order Basic < Premium < VIP.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Valid reports whether the tier is a known level.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}

// Max returns the higher of two tiers.
func Max(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Duration is a billing duration.
type Duration string

const (
	DurationMonthly Duration = "monthly"
	DurationYearly  Duration = "yearly"
)

// ParseDuration parses a billing duration.
func ParseDuration(s string) (Duration, error) {
	d := Duration(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DurationMonthly, DurationYearly:
		return d, nil
	}
	return "", fmt.Errorf("unknown duration %q", s)
}

// FeatureValue is either a plain on/off switch or a qualitative level.
type FeatureValue struct {
	Enabled bool   `json:"enabled"`
	Level   string `json:"level,omitempty"`
}

// Granted reports whether the value grants access at all.
func (v FeatureValue) Granted() bool {
	return v.Enabled || v.Level != ""
}

// On returns an enabled boolean feature value.
func On() FeatureValue { return FeatureValue{Enabled: true} }

// Off returns a disabled feature value.
func Off() FeatureValue { return FeatureValue{} }

// Level returns a qualitative feature value; any level grants access.
func Level(l string) FeatureValue { return FeatureValue{Enabled: true, Level: l} }

// FeatureSet maps feature name to its value for a tier.
type FeatureSet map[string]FeatureValue

// Clone returns an independent copy of the set.
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// TraditionalPrice is a fiat price point bound to a store product.
type TraditionalPrice struct {
	Price     decimal.Decimal
	ProductID string
}

// CryptoPrice is an on-chain price point.
type CryptoPrice struct {
	Amount   decimal.Decimal
	Currency string
}

// Plan describes one subscription tier.
type Plan struct {
	Tier        Tier
	Name        string
	Description string
	Traditional map[Duration]TraditionalPrice
	Crypto      map[Duration]CryptoPrice
	Features    FeatureSet
}

var plans = map[Tier]Plan{
	TierBasic: {
		Tier:        TierBasic,
		Name:        "Travel Explorer",
		Description: "Essential travel planning features",
		Traditional: map[Duration]TraditionalPrice{
			DurationMonthly: {Price: decimal.RequireFromString("9.99"), ProductID: "travel_basic_monthly"},
			DurationYearly:  {Price: decimal.RequireFromString("99.99"), ProductID: "travel_basic_yearly"},
		},
		Crypto: map[Duration]CryptoPrice{
			DurationMonthly: {Amount: decimal.RequireFromString("0.5"), Currency: "AVAX"},
			DurationYearly:  {Amount: decimal.RequireFromString("5.0"), Currency: "AVAX"},
		},
		Features: FeatureSet{
			"flights":          Level("basic_search"),
			"hotels":           Level("basic_booking"),
			"experiences":      Off(),
			"concierge":        Off(),
			"priority_support": Off(),
			"ai_agents":        Level("limited"),
			"voice_commands":   Off(),
			"offline_maps":     Off(),
		},
	},
	TierPremium: {
		Tier:        TierPremium,
		Name:        "Travel Professional",
		Description: "Enhanced travel planning with AI assistance",
		Traditional: map[Duration]TraditionalPrice{
			DurationMonthly: {Price: decimal.RequireFromString("24.99"), ProductID: "travel_premium_monthly"},
			DurationYearly:  {Price: decimal.RequireFromString("249.99"), ProductID: "travel_premium_yearly"},
		},
		Crypto: map[Duration]CryptoPrice{
			DurationMonthly: {Amount: decimal.RequireFromString("1.25"), Currency: "AVAX"},
			DurationYearly:  {Amount: decimal.RequireFromString("12.5"), Currency: "AVAX"},
		},
		Features: FeatureSet{
			"flights":          Level("premium_search"),
			"hotels":           Level("premium_booking"),
			"experiences":      Level("basic_experiences"),
			"concierge":        Off(),
			"priority_support": On(),
			"ai_agents":        Level("full"),
			"voice_commands":   On(),
			"offline_maps":     On(),
		},
	},
	TierVIP: {
		Tier:        TierVIP,
		Name:        "Travel Concierge",
		Description: "Ultimate travel experience with personal concierge",
		Traditional: map[Duration]TraditionalPrice{
			DurationMonthly: {Price: decimal.RequireFromString("49.99"), ProductID: "travel_vip_monthly"},
			DurationYearly:  {Price: decimal.RequireFromString("499.99"), ProductID: "travel_vip_yearly"},
		},
		Crypto: map[Duration]CryptoPrice{
			DurationMonthly: {Amount: decimal.RequireFromString("2.5"), Currency: "AVAX"},
			DurationYearly:  {Amount: decimal.RequireFromString("25.0"), Currency: "AVAX"},
		},
		Features: FeatureSet{
			"flights":          Level("vip_search"),
			"hotels":           Level("vip_booking"),
			"experiences":      Level("premium_experiences"),
			"concierge":        On(),
			"priority_support": On(),
			"ai_agents":        Level("unlimited"),
			"voice_commands":   On(),
			"offline_maps":     On(),
		},
	},
}

// PlanFor returns the plan for a tier.
func PlanFor(tier Tier) (Plan, bool) {
	p, ok := plans[tier]
	return p, ok
}

// Features returns a copy of the feature set for a tier.
func Features(tier Tier) FeatureSet {
	p, ok := plans[tier]
	if !ok {
		return FeatureSet{}
	}
	return p.Features.Clone()
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierBasic, TierPremium, TierVIP}
}
