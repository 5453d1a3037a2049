package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/tool"
)

func intPtr(i int) *int { return &i }

func TestCheckRules_Defaults(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{})

	assert.Equal(t, 4, v.Preferences.People)
	assert.Equal(t, 400.0, v.Preferences.BudgetPerPerson)
	assert.Equal(t, 0, *v.Preferences.NonVegPerWeek)
	assert.Equal(t, 60, v.Preferences.WeekdayCookMinutes)
	assert.Equal(t, 0, v.Preferences.BreakfastDays)
	assert.True(t, v.SundaySpecial)
	assert.Equal(t, 1, v.MaxNonVegPerDay)
	assert.Contains(t, v.Excluded, "paneer")
	assert.Equal(t, 308.0, v.WeeklyCostPerPerson)
	assert.Equal(t, 1232.0, v.WeeklyCostTotal)
	assert.True(t, v.WithinBudget)
	assert.Empty(t, v.Adjustments)
}

func TestCheckRules_NonVegCappedPerDay(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		BudgetPerPerson: 1000,
		NonVegPerWeek:   intPtr(14),
		PreferredNonVeg: []string{"Chicken", "tofu"},
	})

	assert.Equal(t, 7, *v.Preferences.NonVegPerWeek)
	assert.Equal(t, []string{"chicken"}, v.Preferences.PreferredNonVeg)
	assert.NotContains(t, v.Excluded, "paneer")
	require.NotEmpty(t, v.Adjustments)
	assert.Contains(t, v.Adjustments[0], "non-veg reduced from 14 to 7")
}

func TestCheckRules_NonVegTradedForBudget(t *testing.T) {
	// 14*22 = 308 base, 5 breakfasts = 60, leaving 32 for mutton at 60 each.
	v := DefaultRules().CheckRules(Preferences{
		NonVegPerWeek:   intPtr(3),
		PreferredNonVeg: []string{"mutton"},
		Breakfast:       true,
	})

	assert.Equal(t, 0, *v.Preferences.NonVegPerWeek)
	assert.Equal(t, 5, v.Preferences.BreakfastDays)
	assert.Equal(t, 368.0, v.WeeklyCostPerPerson)
	assert.True(t, v.WithinBudget)
	assert.Contains(t, v.Adjustments, "non-veg reduced to 0 meals/week to stay within ₹400/person")
}

func TestCheckRules_CheapestNonVegUsed(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		NonVegPerWeek:   intPtr(5),
		PreferredNonVeg: []string{"chicken", "egg"},
	})

	// 308 + 5*8 (egg) = 348
	assert.Equal(t, 5, *v.Preferences.NonVegPerWeek)
	assert.Equal(t, 348.0, v.WeeklyCostPerPerson)
}

func TestCheckRules_BreakfastBoundsAndCooking(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		BudgetPerPerson:    800,
		Breakfast:          true,
		BreakfastDays:      7,
		WeekdayCookMinutes: 90,
	})

	assert.Equal(t, 5, v.Preferences.BreakfastDays)
	assert.Equal(t, 60, v.Preferences.WeekdayCookMinutes)
	assert.Contains(t, v.Adjustments, "breakfast days set from 7 to 5")
	assert.Contains(t, v.Adjustments, "weekday cooking capped at 60 minutes")

	v = DefaultRules().CheckRules(Preferences{Breakfast: true, BreakfastDays: 2, BudgetPerPerson: 800})
	assert.Equal(t, 4, v.Preferences.BreakfastDays)
}

func TestCheckRules_ExclusionsAndJain(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		NonVegPerWeek: intPtr(4),
		Jain:          true,
		Hated:         []string{" Karela "},
		Allergies:     []string{"peanut"},
		FavouriteVeg:  []string{"Paneer butter masala", "Aloo gobi", "Karela fry", "Rajma"},
	})

	assert.Equal(t, 0, *v.Preferences.NonVegPerWeek)
	assert.Nil(t, v.Preferences.PreferredNonVeg)
	assert.Equal(t, []string{"onion", "garlic", "potato", "karela", "peanut", "paneer"}, v.Excluded)
	assert.Equal(t, []string{"Aloo gobi", "Rajma"}, v.Preferences.FavouriteVeg)
	assert.Contains(t, v.Adjustments, "non-veg removed for a Jain household")
}

func TestCheckRules_DefaultNonVegAllExcluded(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		BudgetPerPerson: 600,
		NonVegPerWeek:   intPtr(3),
		Allergies:       []string{"egg"},
		Hated:           []string{"chicken"},
	})

	assert.Equal(t, 0, *v.Preferences.NonVegPerWeek)
	assert.Empty(t, v.Preferences.PreferredNonVeg)
	assert.Equal(t, 308.0, v.WeeklyCostPerPerson)
	assert.Equal(t, []string{"non-veg removed: every non-veg option is excluded"}, v.Adjustments)
}

func TestCheckRules_AllergyFiltersPreferredNonVeg(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{
		NonVegPerWeek:   intPtr(2),
		PreferredNonVeg: []string{"egg", "fish"},
		Allergies:       []string{"Eggs"},
	})

	// 308 + 2*30 (fish) = 368
	assert.Equal(t, []string{"fish"}, v.Preferences.PreferredNonVeg)
	assert.Equal(t, 2, *v.Preferences.NonVegPerWeek)
	assert.Equal(t, 368.0, v.WeeklyCostPerPerson)
	assert.True(t, v.WithinBudget)
}

func TestCheckRules_OverBudgetEvenAllVeg(t *testing.T) {
	v := DefaultRules().CheckRules(Preferences{BudgetPerPerson: 200})

	assert.False(t, v.WithinBudget)
	assert.Contains(t, v.Adjustments[len(v.Adjustments)-1], "exceeds ₹200/person")
}

func TestCheckRulesTool(t *testing.T) {
	runCtx := core.NewRunContext(context.Background(), testutil.DefaultKey, "run-1",
		core.AgentInfo{Name: ConstraintValidatorName, Type: "model"}, core.Content{}, 0,
		make(chan core.Event, 1), nil, core.NewSession(testutil.DefaultKey), nil, nil, logging.NoOpLogger{})
	tc := core.NewToolContext(runCtx, "call-1")

	out, err := NewCheckRulesTool(DefaultRules()).Call(tc, map[string]any{
		"people":           float64(6),
		"non_veg_per_week": float64(9),
		"preferred_non_veg": []any{"egg"},
	})
	require.NoError(t, err)

	v, ok := out.(Validated)
	require.True(t, ok)
	assert.Equal(t, 6, v.Preferences.People)
	assert.Equal(t, 7, *v.Preferences.NonVegPerWeek)

	stored, ok := tc.GetState(StateRuleCheck)
	require.True(t, ok)
	assert.Equal(t, v, stored)
	estimate, ok := tc.GetState(StateWeeklyEstimate)
	require.True(t, ok)
	assert.Equal(t, v.WeeklyCostTotal, estimate)

	_, err = NewCheckRulesTool(DefaultRules()).Call(tc, map[string]any{"people": "many"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}
