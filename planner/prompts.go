package planner

// Agent names.
const (
	RootName                = "MessMealPlanner"
	InputCollectorName      = "input_collector"
	ConstraintValidatorName = "constraint_validator"
	MealPlannerName         = "meal_planner"
	FeedbackName            = "feedback"
	BudgetEstimatorName     = "budget_estimator"
)

// State keys written by the specialists (OutputKey).
const (
	StatePreferences          = "preferences"
	StateValidatedPreferences = "validated_preferences"
	StateMealPlan             = "meal_plan"
	StateFeedback             = "feedback"
	StateBudget               = "budget"
	StateRuleCheck            = "rule_check"
	StateWeeklyEstimate       = "weekly_estimate"
)

const (
	rootDescription = "Full Indian mess meal planner"
	rootInstruction = "Run in order: input_collector → constraint_validator → meal_planner."

	inputCollectorDescription = "Collects user preferences for mess meal planning."
	inputCollectorInstruction = `Ask the user step-by-step:
- How many people? (default 4)
- Weekly budget per person? (default ₹400)
- Max non-veg times a week? (0–14)
- Preferred non-veg: chicken, egg, fish, mutton
- Favourite veg dishes
- Any dish you HATE?
- Jain / allergies?
- Breakfast from mess fund?
Also ask:
- Goal
- Health conditions
- Activity level
Return clean JSON.`

	constraintValidatorDescription = "Applies hard mess rules + user rules."
	constraintValidatorInstruction = `Hard rules (₹400/person, 4 people):
- Adjust non-veg if over budget
- Only 1 non-veg meal/day
- No paneer if budget ≤ ₹400
- Weekdays cooking ≤60 min
- Sunday = special
- Breakfast 4–5 days allowed
Validate and return JSON.`

	mealPlannerDescription = "Generates full 7-day mess menu."
	mealPlannerInstruction = `Create a 7-day 2-course meal plan.
- Plan 14 meals, not daywise
- Sunday special
- Lunch must include rice
- Chicken/fish at least once/week
- No consecutive identical meals
- Stay in budget, use leftovers
Return markdown table + cost.`

	feedbackDescription = "Collects a 1–5 rating and change requests."
	feedbackInstruction = "Ask for rating (1-5) and what changes are needed. Return JSON."

	budgetEstimatorDescription = "Real-time grocery prices using web search"
	budgetEstimatorInstruction = `Use web search to find ingredient prices.
Compute exact weekly cost.
Suggest cheaper alternatives.
Return final menu + cost.`
)

// Extra instruction lines. The validator is told about the rule checker when
// the tool is attached; sequential mode feeds earlier results via state.
const (
	ruleToolHint = `Call check_mess_rules with the collected preferences and treat its "adjustments" as binding.`

	validatorStateBlock = `Collected preferences:
{{ default "none collected, use the defaults" .preferences }}`

	plannerStateBlock = `Validated preferences:
{{ default "none, use the defaults" .validated_preferences }}
{{ with .rule_check }}
Rule check (binding): {{ json . }}{{ end }}`

	budgetStateBlock = `Menu to price:
{{ default "no menu yet" .meal_plan }}
{{ with .weekly_estimate }}
Rule-check estimate for the household: {{ rupees . }}/week.{{ end }}`
)
