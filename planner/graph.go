package planner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/messplanner/agent"
	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// Mode selects how the root agent drives the specialists.
type Mode string

const (
	// ModeCoordinator lets the root model hand the conversation to
	// specialists via transfer_to_agent.
	ModeCoordinator Mode = "coordinator"
	// ModeSequential runs collect -> validate -> plan -> estimate in order.
	ModeSequential Mode = "sequential"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCoordinator:
		return ModeCoordinator, nil
	case ModeSequential:
		return ModeSequential, nil
	default:
		return "", fmt.Errorf("unknown planner mode %q", s)
	}
}

// Options configures the agent graph.
type Options struct {
	Mode Mode
	// Search is attached to budget_estimator (web_search).
	Search tool.Tool
	// Memory (preload_memory) is attached to the root agent, or to
	// input_collector in sequential mode where the root never calls the model.
	Memory tool.Tool
	// Rules backs the check_mess_rules tool of the validator.
	Rules           Rules
	DisableRuleTool bool
	EnableStreaming bool
	ToolTimeout     time.Duration
}

// New builds the planner graph around llm and returns its root agent.
func New(llm model.Model, optFns ...func(o *Options)) (core.Agent, error) {
	if llm == nil {
		return nil, errors.New("planner: model is required")
	}

	opts := Options{
		Mode:        ModeCoordinator,
		Rules:       DefaultRules(),
		ToolTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	switch opts.Mode {
	case ModeCoordinator:
		return newCoordinator(llm, opts)
	case ModeSequential:
		return newSequential(llm, opts)
	default:
		return nil, fmt.Errorf("planner: unknown mode %q", opts.Mode)
	}
}

type role struct {
	name        string
	description string
	instruction string
	outputKey   string
	tools       []tool.Tool
}

func (opts Options) specialist(llm model.Model, r role, allowTransfer bool) *agent.ModelAgent {
	return agent.NewModelAgent(r.name, llm, func(o *agent.ModelAgentOptions) {
		o.Description = r.description
		o.Instruction = agent.NewInstructionFromText(r.instruction)
		o.OutputKey = r.outputKey
		o.Tools = r.tools
		o.AllowTransfer = allowTransfer
		o.EnableStreaming = opts.EnableStreaming
		o.ToolTimeout = opts.ToolTimeout
	})
}

func (opts Options) roles(withState bool) (collector, validator, mealPlanner, feedback, budget role) {
	collector = role{InputCollectorName, inputCollectorDescription, inputCollectorInstruction, StatePreferences, nil}

	validator = role{ConstraintValidatorName, constraintValidatorDescription, constraintValidatorInstruction, StateValidatedPreferences, nil}
	if !opts.DisableRuleTool {
		validator.tools = []tool.Tool{NewCheckRulesTool(opts.Rules)}
		validator.instruction += "\n" + ruleToolHint
	}

	mealPlanner = role{MealPlannerName, mealPlannerDescription, mealPlannerInstruction, StateMealPlan, nil}
	feedback = role{FeedbackName, feedbackDescription, feedbackInstruction, StateFeedback, nil}

	budget = role{BudgetEstimatorName, budgetEstimatorDescription, budgetEstimatorInstruction, StateBudget, nil}
	if opts.Search != nil {
		budget.tools = []tool.Tool{opts.Search}
	}

	if withState {
		validator.instruction += "\n\n" + validatorStateBlock
		mealPlanner.instruction += "\n\n" + plannerStateBlock
		budget.instruction += "\n\n" + budgetStateBlock
	}

	return collector, validator, mealPlanner, feedback, budget
}

func newCoordinator(llm model.Model, opts Options) (core.Agent, error) {
	collector, validator, mealPlanner, feedback, budget := opts.roles(false)

	var rootTools []tool.Tool
	if opts.Memory != nil {
		rootTools = append(rootTools, opts.Memory)
	}

	root := agent.NewModelAgent(RootName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = rootDescription
		o.Instruction = agent.ComposeInstructions(
			agent.NewInstructionFromText(rootInstruction),
			agent.NewInstructionFromFunc(sessionProgress),
		)
		o.Tools = rootTools
		o.EnableStreaming = opts.EnableStreaming
		o.ToolTimeout = opts.ToolTimeout
	})

	children := []core.Agent{
		opts.specialist(llm, collector, true),
		opts.specialist(llm, validator, true),
		opts.specialist(llm, mealPlanner, true),
		opts.specialist(llm, feedback, true),
		opts.specialist(llm, budget, true),
	}
	if err := root.SetSubAgents(children...); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	return root, nil
}

func newSequential(llm model.Model, opts Options) (core.Agent, error) {
	collector, validator, mealPlanner, _, budget := opts.roles(true)
	if opts.Memory != nil {
		collector.tools = append(collector.tools, opts.Memory)
	}

	root := agent.NewSequentialAgent(RootName,
		opts.specialist(llm, collector, false),
		opts.specialist(llm, validator, false),
		opts.specialist(llm, mealPlanner, false),
		opts.specialist(llm, budget, false),
	)
	root.SetDescription(rootDescription)

	return root, nil
}

// sessionProgress tells the coordinator which pipeline outputs the session
// already holds so follow-up messages are routed instead of restarting.
func sessionProgress(runCtx *core.RunContext) (string, error) {
	steps := []struct{ key, label string }{
		{StatePreferences, "preferences collected"},
		{StateValidatedPreferences, "preferences validated"},
		{StateMealPlan, "weekly menu planned"},
		{StateBudget, "budget estimated"},
		{StateFeedback, "feedback received"},
	}

	var done []string
	for _, s := range steps {
		if v, ok := runCtx.GetState(s.key); ok && v != nil && v != "" {
			done = append(done, s.label)
		}
	}
	if len(done) == 0 {
		return "", nil
	}

	return "Progress in this session: " + strings.Join(done, ", ") + ".", nil
}
