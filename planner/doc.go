// Package planner declares the Desi Mess Meal Planner agent graph.
//
// Six agents share one model: a root coordinator (MessMealPlanner) and the
// input_collector, constraint_validator, meal_planner, feedback and
// budget_estimator specialists. In coordinator mode the root hands the
// conversation to specialists with transfer_to_agent; in sequential mode the
// pipeline collect -> validate -> plan -> estimate runs deterministically and
// passes results along through session state.
//
// The hard mess rules are also implemented as code (CheckRules) and exposed to
// the validator as the check_mess_rules tool.
package planner
