package planner

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/tool"
)

// CheckRulesName is the name of the rule checking tool.
const CheckRulesName = "check_mess_rules"

// Preferences are the collected household preferences. Zero values mean
// "not given" and fall back to the defaults of Rules.
type Preferences struct {
	People             int      `json:"people,omitempty"`
	BudgetPerPerson    float64  `json:"budget_per_person,omitempty"`
	NonVegPerWeek      *int     `json:"non_veg_per_week,omitempty"`
	PreferredNonVeg    []string `json:"preferred_non_veg,omitempty"`
	FavouriteVeg       []string `json:"favourite_veg,omitempty"`
	Hated              []string `json:"hated,omitempty"`
	Jain               bool     `json:"jain,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	Breakfast          bool     `json:"breakfast,omitempty"`
	BreakfastDays      int      `json:"breakfast_days,omitempty"`
	WeekdayCookMinutes int      `json:"weekday_cook_minutes,omitempty"`
	Goal               string   `json:"goal,omitempty"`
	HealthConditions   string   `json:"health_conditions,omitempty"`
	ActivityLevel      string   `json:"activity_level,omitempty"`
}

// Rules holds the hard mess rules and the rough cost model used to enforce
// the budget. Prices are in rupees per person.
type Rules struct {
	DefaultPeople          int
	DefaultBudgetPerPerson float64
	MaxNonVegPerDay        int
	PaneerBudgetThreshold  float64
	MaxWeekdayCookMinutes  int
	MinBreakfastDays       int
	MaxBreakfastDays       int
	VegMealCost            float64
	BreakfastCost          float64
	// NonVegExtra is the surcharge of a non-veg meal over a veg meal.
	NonVegExtra map[string]float64
}

// DefaultRules returns the house rules (₹400/person, 4 people).
func DefaultRules() Rules {
	return Rules{
		DefaultPeople:          4,
		DefaultBudgetPerPerson: 400,
		MaxNonVegPerDay:        1,
		PaneerBudgetThreshold:  400,
		MaxWeekdayCookMinutes:  60,
		MinBreakfastDays:       4,
		MaxBreakfastDays:       5,
		VegMealCost:            22,
		BreakfastCost:          12,
		NonVegExtra: map[string]float64{
			"egg":     8,
			"chicken": 25,
			"fish":    30,
			"mutton":  60,
		},
	}
}

// Validated is the outcome of CheckRules.
type Validated struct {
	Preferences         Preferences `json:"preferences"`
	Excluded            []string    `json:"excluded,omitempty"`
	MaxNonVegPerDay     int         `json:"max_non_veg_per_day"`
	SundaySpecial       bool        `json:"sunday_special"`
	WeeklyCostPerPerson float64     `json:"weekly_cost_per_person"`
	WeeklyCostTotal     float64     `json:"weekly_cost_total"`
	WithinBudget        bool        `json:"within_budget"`
	Adjustments         []string    `json:"adjustments,omitempty"`
}

const mealsPerWeek = 14

var jainExclusions = []string{"onion", "garlic", "potato"}

// CheckRules applies the hard mess rules to p. It never fails; conflicting
// input is adjusted and every change is listed in Adjustments.
func (r Rules) CheckRules(p Preferences) Validated {
	v := Validated{MaxNonVegPerDay: r.MaxNonVegPerDay, SundaySpecial: true}
	note := func(format string, args ...any) {
		v.Adjustments = append(v.Adjustments, fmt.Sprintf(format, args...))
	}

	if p.People <= 0 {
		p.People = r.DefaultPeople
	}
	if p.BudgetPerPerson <= 0 {
		p.BudgetPerPerson = r.DefaultBudgetPerPerson
	}

	maxNonVeg := 7 * r.MaxNonVegPerDay
	nonVeg := 0
	if p.NonVegPerWeek != nil {
		nonVeg = *p.NonVegPerWeek
	}
	if nonVeg < 0 {
		nonVeg = 0
	}
	if nonVeg > maxNonVeg {
		note("non-veg reduced from %d to %d meals/week (max %d per day)", nonVeg, maxNonVeg, r.MaxNonVegPerDay)
		nonVeg = maxNonVeg
	}

	p.PreferredNonVeg = r.knownNonVeg(p.PreferredNonVeg)
	if p.Jain {
		if nonVeg > 0 {
			note("non-veg removed for a Jain household")
		}
		nonVeg = 0
		p.PreferredNonVeg = nil
		v.Excluded = append(v.Excluded, jainExclusions...)
	}

	for _, h := range p.Hated {
		v.Excluded = appendUnique(v.Excluded, strings.ToLower(strings.TrimSpace(h)))
	}
	v.Excluded = appendUnique(v.Excluded, normalizeAll(p.Allergies)...)

	if p.BudgetPerPerson <= r.PaneerBudgetThreshold {
		v.Excluded = appendUnique(v.Excluded, "paneer")
	}

	if nonVeg > 0 && len(p.PreferredNonVeg) == 0 {
		p.PreferredNonVeg = []string{"egg", "chicken"}
	}
	p.PreferredNonVeg = slices.DeleteFunc(p.PreferredNonVeg, func(item string) bool {
		return excludes(v.Excluded, item)
	})
	excludedNonVeg := nonVeg > 0 && len(p.PreferredNonVeg) == 0
	if excludedNonVeg {
		note("non-veg removed: every non-veg option is excluded")
		nonVeg = 0
	}

	p.FavouriteVeg = slices.DeleteFunc(slices.Clone(p.FavouriteVeg), func(dish string) bool {
		for _, ex := range v.Excluded {
			if ex != "" && strings.Contains(strings.ToLower(dish), ex) {
				note("dropped %q from favourites (%s excluded)", dish, ex)
				return true
			}
		}
		return false
	})

	if !p.Breakfast {
		p.BreakfastDays = 0
	} else {
		days := p.BreakfastDays
		if days == 0 {
			days = r.MaxBreakfastDays
		}
		clamped := min(max(days, r.MinBreakfastDays), r.MaxBreakfastDays)
		if clamped != days && p.BreakfastDays != 0 {
			note("breakfast days set from %d to %d", days, clamped)
		}
		p.BreakfastDays = clamped
	}

	if p.WeekdayCookMinutes <= 0 || p.WeekdayCookMinutes > r.MaxWeekdayCookMinutes {
		if p.WeekdayCookMinutes > r.MaxWeekdayCookMinutes {
			note("weekday cooking capped at %d minutes", r.MaxWeekdayCookMinutes)
		}
		p.WeekdayCookMinutes = r.MaxWeekdayCookMinutes
	}

	// Trade non-veg meals, then breakfast days, for budget.
	cost := r.weeklyCost(p, nonVeg)
	for cost > p.BudgetPerPerson && nonVeg > 0 {
		nonVeg--
		cost = r.weeklyCost(p, nonVeg)
	}
	if p.NonVegPerWeek != nil && nonVeg < min(max(*p.NonVegPerWeek, 0), maxNonVeg) && !p.Jain && !excludedNonVeg {
		note("non-veg reduced to %d meals/week to stay within ₹%.0f/person", nonVeg, p.BudgetPerPerson)
	}
	for cost > p.BudgetPerPerson && p.BreakfastDays > r.MinBreakfastDays {
		p.BreakfastDays--
		cost = r.weeklyCost(p, nonVeg)
		note("breakfast reduced to %d days to stay within budget", p.BreakfastDays)
	}

	p.NonVegPerWeek = &nonVeg
	v.Preferences = p
	v.WeeklyCostPerPerson = round2(cost)
	v.WeeklyCostTotal = round2(cost * float64(p.People))
	v.WithinBudget = cost <= p.BudgetPerPerson
	if !v.WithinBudget {
		note("even the all-veg menu exceeds ₹%.0f/person; raise the budget or drop breakfast", p.BudgetPerPerson)
	}

	return v
}

// weeklyCost estimates the weekly cost per person using the cheapest
// preferred non-veg option.
func (r Rules) weeklyCost(p Preferences, nonVeg int) float64 {
	cost := mealsPerWeek*r.VegMealCost + float64(p.BreakfastDays)*r.BreakfastCost
	if nonVeg > 0 {
		extra := math.MaxFloat64
		for _, item := range p.PreferredNonVeg {
			extra = min(extra, r.NonVegExtra[item])
		}
		cost += float64(nonVeg) * extra
	}
	return cost
}

// excludes reports whether item clashes with an exclusion. Plurals count, so
// "eggs" excludes "egg".
func excludes(excluded []string, item string) bool {
	for _, ex := range excluded {
		if ex != "" && (strings.Contains(item, ex) || strings.TrimSuffix(ex, "s") == item) {
			return true
		}
	}
	return false
}

func (r Rules) knownNonVeg(items []string) []string {
	var out []string
	for _, item := range normalizeAll(items) {
		if _, ok := r.NonVegExtra[item]; ok {
			out = appendUnique(out, item)
		}
	}
	return out
}

// NewCheckRulesTool exposes r.CheckRules to the validator agent. The result
// is also stored in session state under StateRuleCheck, and its household
// total under StateWeeklyEstimate.
func NewCheckRulesTool(r Rules) tool.Tool {
	return tool.NewFunctionTool(
		CheckRulesName,
		"Apply the hard mess rules (budget, non-veg cap, paneer rule, cooking time, Sunday special, breakfast days) to collected preferences and return the adjusted preferences with a weekly cost estimate.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"people":               map[string]any{"type": "integer", "description": "Household size (default 4)"},
				"budget_per_person":    map[string]any{"type": "number", "description": "Weekly budget per person in rupees (default 400)"},
				"non_veg_per_week":     map[string]any{"type": "integer", "description": "Requested non-veg meals per week (0-14)"},
				"preferred_non_veg":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"favourite_veg":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"hated":                map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"jain":                 map[string]any{"type": "boolean"},
				"allergies":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"breakfast":            map[string]any{"type": "boolean", "description": "Breakfast paid from the mess fund"},
				"breakfast_days":       map[string]any{"type": "integer"},
				"weekday_cook_minutes": map[string]any{"type": "integer"},
				"goal":                 map[string]any{"type": "string"},
				"health_conditions":    map[string]any{"type": "string"},
				"activity_level":       map[string]any{"type": "string"},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			p, err := decodePreferences(args)
			if err != nil {
				return nil, tool.NewToolError(CheckRulesName, err.Error(), tool.CodeValidation)
			}
			v := r.CheckRules(p)
			tc.SetState(StateRuleCheck, v)
			tc.SetState(StateWeeklyEstimate, v.WeeklyCostTotal)
			return v, nil
		},
	)
}

func decodePreferences(args map[string]any) (Preferences, error) {
	var p Preferences
	raw, err := json.Marshal(args)
	if err != nil {
		return p, fmt.Errorf("encode preferences: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode preferences: %w", err)
	}
	return p, nil
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.ToLower(strings.TrimSpace(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if item != "" && !slices.Contains(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
