package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

// AgentUseCase drives the plan/act loop: one planner call per iteration,
// one tool execution per step, until a final answer or a limit is hit.
type AgentUseCase struct {
	credentials ports.CredentialResolver
	planner     ports.Planner
	memory      ports.MemoryStore
	tools       *Toolset
	ledger      ports.PendingLedger
	queue       ports.InteractionQueue
	writer      ports.InteractionWriter
	limits      domain.AgentLimits
	logger      *slog.Logger
}

func NewAgentUseCase(
	credentials ports.CredentialResolver,
	planner ports.Planner,
	memory ports.MemoryStore,
	tools *Toolset,
	ledger ports.PendingLedger,
	queue ports.InteractionQueue,
	writer ports.InteractionWriter,
	limits domain.AgentLimits,
	logger *slog.Logger,
) *AgentUseCase {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 15
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 120 * time.Second
	}
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 30 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 30 * time.Second
	}
	if limits.RecentMemory <= 0 {
		limits.RecentMemory = 10
	}
	if limits.StepOutputCap <= 0 {
		limits.StepOutputCap = 500
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AgentUseCase{
		credentials: credentials,
		planner:     planner,
		memory:      memory,
		tools:       tools,
		ledger:      ledger,
		queue:       queue,
		writer:      writer,
		limits:      limits,
		logger:      logger,
	}
}

func (uc *AgentUseCase) Execute(ctx context.Context, userID string, cmd domain.Command, mode domain.CommandMode) (*domain.AgentRunResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent execute", fmt.Errorf("user_id is required"))
	}
	command := strings.TrimSpace(cmd.Text)
	if command == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent execute", fmt.Errorf("command text is required"))
	}

	creds, err := uc.credentials.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	memoryContext := ""
	record, err := uc.memory.Read(ctx, creds, commandKeywords(command), uc.limits.RecentMemory)
	if err != nil {
		uc.logger.Warn("memory read failed, continuing without context", "user_id", userID, "error", err)
	} else {
		memoryContext = buildMemoryContext(record)
	}

	loopCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	catalog := uc.tools.Describe()
	scratchpad := make([]string, 0, uc.limits.MaxIterations)
	steps := make([]domain.ToolResult, 0, uc.limits.MaxIterations)
	staged := make([]domain.ToolCall, 0, 4)
	finalAnswer := ""
	fallbackReason := ""
	iterations := 0

	for i := 1; i <= uc.limits.MaxIterations; i++ {
		if loopCtx.Err() != nil {
			fallbackReason = "timeout"
			break
		}

		iterations = i
		plannerCtx, plannerCancel := context.WithTimeout(loopCtx, uc.limits.PlannerTimeout)
		planRaw, err := uc.planner.GenerateJSONFromPrompt(plannerCtx, buildPlannerPrompt(command, cmd.ChatHistory, memoryContext, catalog, scratchpad))
		plannerCancel()
		if err != nil {
			if isTimeoutError(err) {
				fallbackReason = "timeout"
			} else {
				fallbackReason = "planner_error"
			}
			break
		}

		step, err := parsePlanStep(planRaw)
		if err != nil {
			repairCtx, repairCancel := context.WithTimeout(loopCtx, uc.limits.PlannerTimeout)
			repairedRaw, repairErr := uc.planner.GenerateJSONFromPrompt(repairCtx, buildPlannerRepairPrompt(planRaw))
			repairCancel()
			if repairErr != nil {
				if isTimeoutError(repairErr) {
					fallbackReason = "timeout"
				} else {
					fallbackReason = "planner_invalid_json"
				}
				break
			}
			step, err = parsePlanStep(repairedRaw)
			if err != nil {
				fallbackReason = "planner_invalid_json"
				break
			}
		}

		switch step.Type {
		case "final":
			finalAnswer = strings.TrimSpace(step.Answer)
			if finalAnswer == "" {
				finalAnswer = "I could not produce a final answer for this command."
				fallbackReason = "empty_final_answer"
			}
		case "tool":
			call := domain.ToolCall{Name: step.Tool, Args: step.Input}
			if err := uc.tools.Validate(call); err != nil {
				result := errorResult(call, err)
				steps = append(steps, result)
				scratchpad = append(scratchpad, fmt.Sprintf("%s: %s", call.Name, result.Output))
				break
			}
			if mode == domain.ModePreview && uc.tools.SideEffecting(call.Name) {
				staged = append(staged, call)
				scratchpad = append(scratchpad, fmt.Sprintf("%s: queued for confirmation, will run after user approval", call.Name))
				break
			}
			toolCtx, toolCancel := context.WithTimeout(loopCtx, uc.limits.ToolTimeout)
			result := uc.tools.Execute(toolCtx, creds, call)
			toolCancel()
			steps = append(steps, result)
			scratchpad = append(scratchpad, fmt.Sprintf("%s: %s", result.Tool, truncateOutput(result.Output, uc.limits.StepOutputCap)))
		default:
			fallbackReason = "unsupported_step_type"
		}

		if finalAnswer != "" || fallbackReason != "" {
			break
		}
	}

	truncated := false
	if fallbackReason == "" && finalAnswer == "" {
		fallbackReason = "max_iterations"
		truncated = true
	}
	if finalAnswer == "" {
		finalAnswer = uc.partialAnswer(fallbackReason, scratchpad)
	}

	run := &domain.AgentRunResult{
		Status:         domain.RunCompleted,
		Result:         finalAnswer,
		Steps:          steps,
		Iterations:     iterations,
		Truncated:      truncated,
		FallbackReason: fallbackReason,
	}

	if mode == domain.ModePreview && len(staged) > 0 {
		descriptor, err := uc.stagePlan(ctx, userID, command, staged)
		if err != nil {
			return nil, err
		}
		run.Status = domain.RunConfirmationRequired
		run.Pending = descriptor
		return run, nil
	}

	uc.recordInteraction(ctx, userID, command, finalAnswer, steps)
	return run, nil
}

// Confirm consumes a pending token and executes its staged plan in order.
// An expired, unknown, or already-consumed token behaves identically.
func (uc *AgentUseCase) Confirm(ctx context.Context, userID, token string) (*domain.AgentRunResult, error) {
	action, err := uc.consumeForUser(ctx, userID, token)
	if err != nil {
		return nil, err
	}

	creds, err := uc.credentials.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	steps := make([]domain.ToolResult, 0, len(action.Plan))
	answer := "All confirmed actions were executed."
	for i, call := range action.Plan {
		toolCtx, toolCancel := context.WithTimeout(ctx, uc.limits.ToolTimeout)
		result := uc.tools.Execute(toolCtx, creds, call)
		toolCancel()
		steps = append(steps, result)
		if result.Status == domain.ToolStatusError {
			skipped := len(action.Plan) - i - 1
			answer = fmt.Sprintf("Stopped after %q failed; %d remaining action(s) were not executed.", call.Name, skipped)
			break
		}
	}

	run := &domain.AgentRunResult{
		Status:     domain.RunCompleted,
		Result:     answer,
		Steps:      steps,
		Iterations: len(steps),
	}
	uc.recordInteraction(ctx, userID, action.Command, answer, steps)
	return run, nil
}

// Reject consumes a pending token and discards its plan without executing it.
func (uc *AgentUseCase) Reject(ctx context.Context, userID, token string) error {
	_, err := uc.consumeForUser(ctx, userID, token)
	return err
}

func (uc *AgentUseCase) consumeForUser(ctx context.Context, userID, token string) (*domain.PendingAction, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "consume pending action", fmt.Errorf("user_id and token are required"))
	}
	action, err := uc.ledger.Consume(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consume pending action: %w", err)
	}
	// A token staged for another user is indistinguishable from a missing one.
	if action.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "consume pending action", fmt.Errorf("token does not exist"))
	}
	return action, nil
}

func (uc *AgentUseCase) stagePlan(ctx context.Context, userID, command string, plan []domain.ToolCall) (*domain.PendingDescriptor, error) {
	action := domain.PendingAction{
		UserID:      userID,
		Command:     command,
		Plan:        plan,
		Description: describePlan(plan),
	}
	staged, err := uc.ledger.Stage(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("stage pending action: %w", err)
	}
	return &domain.PendingDescriptor{
		Token:       staged.Token,
		Description: staged.Description,
		Plan:        staged.Plan,
		ExpiresAt:   staged.ExpiresAt,
	}, nil
}

// recordInteraction hands the finished run to the memory pipeline. The queue
// is preferred; a publish failure falls back to a synchronous write so the
// interaction is never lost silently.
func (uc *AgentUseCase) recordInteraction(ctx context.Context, userID, command, answer string, steps []domain.ToolResult) {
	research := researchOutputs(steps)
	topics := make([]string, 0, len(research))
	for _, r := range research {
		topics = append(topics, r.Topic)
	}
	event := domain.InteractionEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Command:    command,
		Answer:     answer,
		ToolsUsed:  toolNames(steps),
		Topics:     topics,
		Folders:    folderNames(steps),
		Research:   research,
		OccurredAt: time.Now().UTC(),
	}
	if uc.queue != nil {
		if err := uc.queue.PublishInteraction(ctx, event); err == nil {
			return
		} else {
			uc.logger.Warn("interaction publish failed, writing memory synchronously", "user_id", userID, "error", err)
		}
	}
	if uc.writer == nil {
		return
	}
	if err := uc.writer.Write(ctx, event); err != nil {
		uc.logger.Error("interaction memory write failed", "user_id", userID, "error", err)
	}
}

func (uc *AgentUseCase) partialAnswer(reason string, scratchpad []string) string {
	switch reason {
	case "max_iterations":
		if len(scratchpad) > 0 {
			return "I reached the step limit before finishing. Progress so far:\n" + strings.Join(scratchpad, "\n")
		}
		return "I reached the step limit before finishing this command."
	case "timeout":
		return "The command timed out before completion. Please retry or simplify the request."
	default:
		return "I could not complete this command. Please rephrase and try again."
	}
}

func describePlan(plan []domain.ToolCall) string {
	var b strings.Builder
	b.WriteString("The following actions require your confirmation:\n")
	for i, call := range plan {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, call.Name))
		if len(call.Args) > 0 {
			args, _ := json.Marshal(call.Args)
			b.WriteString(" ")
			b.Write(args)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parsePlanStep(raw string) (domain.PlanStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.PlanStep{}, fmt.Errorf("empty planner response")
	}
	var step domain.PlanStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return domain.PlanStep{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	return step, nil
}

func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func toolNames(steps []domain.ToolResult) []string {
	names := make([]string, 0, len(steps))
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if _, ok := seen[step.Tool]; ok {
			continue
		}
		seen[step.Tool] = struct{}{}
		names = append(names, step.Tool)
	}
	return names
}

func folderNames(steps []domain.ToolResult) []string {
	folders := make([]string, 0, 2)
	for _, step := range steps {
		if step.Tool != toolCreateFolder || step.Status != domain.ToolStatusOK {
			continue
		}
		if name := stringInput(step.Input, "name", ""); name != "" {
			folders = append(folders, name)
		}
	}
	return folders
}

func researchOutputs(steps []domain.ToolResult) []domain.ResearchOutput {
	outputs := make([]domain.ResearchOutput, 0, 1)
	for _, step := range steps {
		if step.Tool != toolResearchTopic || step.Status != domain.ToolStatusOK {
			continue
		}
		topic := stringInput(step.Input, "topic", "")
		if topic == "" {
			continue
		}
		outputs = append(outputs, domain.ResearchOutput{Topic: topic, Article: step.Output})
	}
	return outputs
}
