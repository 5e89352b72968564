package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final\s*Answer:\s*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)Thought:\s*([^\n]+)`)
	actionRe      = regexp.MustCompile(`(?i)Action:\s*([a-z][a-z0-9_]*)`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input:\s*`)
)

// ReActAgentService implements agentic reasoning with tool use
type ReActAgentService struct {
	logger   *slog.Logger
	llm      domain.LLMProvider
	tools    *domain.ToolRegistry
	convs    *ConversationStore
	maxIters int
}

// NewReActAgentService creates a new ReAct-enabled agent
func NewReActAgentService(logger *slog.Logger, llm domain.LLMProvider, tools *domain.ToolRegistry, convs *ConversationStore) *ReActAgentService {
	return &ReActAgentService{
		logger:   logger,
		llm:      llm,
		tools:    tools,
		convs:    convs,
		maxIters: 5,
	}
}

// Chat processes a user message using ReAct reasoning, within a conversation context.
// If convID is empty, it creates a new conversation automatically.
func (s *ReActAgentService) Chat(ctx context.Context, convID domain.ConversationID, message string) (*domain.AgentResponse, error) {
	s.logger.Info("starting ReAct loop", "conversation_id", string(convID))

	if convID == "" {
		title := message
		if len(title) > 50 {
			title = clip(title, 50) + "..."
		}
		conv, err := s.convs.CreateConversation(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
		s.logger.Info("auto-created conversation", "conversation_id", string(convID))
	} else if _, err := s.convs.GetConversation(ctx, convID); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	// history is read before the new message is stored so it is not repeated in the prompt
	history, err := s.convs.BuildContextWindow(ctx, convID, 20)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	userMsg := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: convID,
		Role:           domain.RoleUser,
		Content:        message,
		CreatedAt:      time.Now(),
	}
	if err := s.convs.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	conversationHistory := []string{s.buildReActPrompt(history, message)}
	steps := []domain.ReActStep{}
	var pending []domain.AssetJobID

	ctx = ContextWithConversation(ctx, convID)

	for i := 0; i < s.maxIters; i++ {
		prompt := strings.Join(conversationHistory, "\n\n")
		response, err := s.llm.GenerateText(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("llm generate: %w", err)
		}
		s.logger.Debug("LLM response", "iteration", i+1, "response", response[:min(200, len(response))])

		step := s.parseReActOutput(response)

		if step.IsFinalAnswer || step.Action == "" {
			if !step.IsFinalAnswer {
				// a reply without the expected markers is treated as the answer itself
				step.IsFinalAnswer = true
				step.FinalAnswer = strings.TrimSpace(response)
			}
			steps = append(steps, step)
			return s.finish(ctx, convID, step, steps, pending), nil
		}

		s.logger.Info("executing tool", "tool", step.Action, "conversation_id", string(convID))
		result, err := s.tools.Execute(ctx, step.Action, step.ActionInput)
		if err != nil {
			step.Observation = fmt.Sprintf("Error: %v", err)
			if result != nil {
				resultJSON, _ := json.Marshal(result)
				step.Observation += " " + string(resultJSON)
			}
		} else {
			resultJSON, _ := json.Marshal(result)
			step.Observation = string(resultJSON)
			if id := pendingJobID(result); id != "" {
				pending = append(pending, id)
			}
		}
		steps = append(steps, step)

		conversationHistory = append(conversationHistory, response)
		conversationHistory = append(conversationHistory, fmt.Sprintf("Observation: %s", step.Observation))
	}

	return nil, fmt.Errorf("max iterations (%d) reached without final answer", s.maxIters)
}

func (s *ReActAgentService) finish(ctx context.Context, convID domain.ConversationID, step domain.ReActStep, steps []domain.ReActStep, pending []domain.AssetJobID) *domain.AgentResponse {
	assistantMsg := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: convID,
		Role:           domain.RoleAssistant,
		Content:        step.FinalAnswer,
		Thought:        step.Thought,
		Steps:          steps,
		CreatedAt:      time.Now(),
	}
	if err := s.convs.AddMessage(ctx, assistantMsg); err != nil {
		s.logger.Error("failed to persist assistant message", "error", err)
	}

	return &domain.AgentResponse{
		ConversationID: convID,
		Response:       step.FinalAnswer,
		Thought:        step.Thought,
		Steps:          steps,
		Pending:        pending,
	}
}

func pendingJobID(result interface{}) domain.AssetJobID {
	m, ok := result.(map[string]interface{})
	if !ok || m["status"] != "processing" {
		return ""
	}
	id, _ := m["job_id"].(string)
	return domain.AssetJobID(id)
}

// buildReActPrompt creates the initial prompt with tool descriptions and conversation history
func (s *ReActAgentService) buildReActPrompt(history string, userMessage string) string {
	var historyBlock string
	if history != "" {
		historyBlock = fmt.Sprintf("Previous conversation:\n%s\n---\n", history)
	}

	return fmt.Sprintf(`You are a friendly weather assistant with access to tools.

You use the ReAct pattern: Thought → Action → Observation → ... → Final Answer.

FORMAT (tool call):
Thought: <reasoning>
Action: <EXACT tool name from list below>
Action Input: <JSON params>

FORMAT (direct answer):
Thought: <reasoning>
Final Answer: <response>

%s
%s
RULES:
1. Always start with "Thought:"
2. For greetings and small talk go DIRECTLY to "Final Answer:".
3. Use get_weather for any question about current conditions. Never invent numbers.
4. Only use create_weather_video when the user asks for a video.
5. create_weather_video is ASYNC. When "status":"processing", give the user the player_url and say the video is still processing; a follow-up message will arrive when it is ready.
6. Action Input must be valid JSON on one line.

EXAMPLES:

User: Hello!
Thought: Simple greeting, no tool needed.
Final Answer: Hello! Ask me about the weather anywhere.

User: How hot is it in Lisbon?
Thought: I need current conditions for Lisbon.
Action: get_weather
Action Input: {"location": "Lisbon"}

Now respond to:
User: %s`, s.tools.FormatToolsForPrompt(), historyBlock, userMessage)
}

// parseReActOutput extracts Thought/Action/ActionInput or FinalAnswer from LLM response
func (s *ReActAgentService) parseReActOutput(response string) domain.ReActStep {
	step := domain.ReActStep{}

	if matches := thoughtRe.FindStringSubmatch(response); len(matches) > 1 {
		step.Thought = strings.TrimSpace(matches[1])
	}

	// an Action before the Final Answer wins: the model sometimes predicts the answer too
	actionLoc := actionRe.FindStringSubmatchIndex(response)
	finalLoc := finalAnswerRe.FindStringSubmatchIndex(response)
	if finalLoc != nil && (actionLoc == nil || finalLoc[0] < actionLoc[0]) {
		step.IsFinalAnswer = true
		step.FinalAnswer = strings.TrimSpace(response[finalLoc[2]:finalLoc[3]])
		return step
	}

	if actionLoc != nil {
		step.Action = strings.TrimSpace(response[actionLoc[2]:actionLoc[3]])
		step.ActionInput = s.extractActionInput(response)
	}
	return step
}

// extractActionInput extracts the JSON object from "Action Input: {...}" using brace-depth counting
// to handle nested JSON objects correctly.
func (s *ReActAgentService) extractActionInput(response string) map[string]interface{} {
	loc := actionInputRe.FindStringIndex(response)
	if loc == nil {
		return nil
	}

	rest := response[loc[1]:]
	start := strings.Index(rest, "{")
	if start < 0 {
		return nil
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				jsonStr := rest[start : i+1]
				var params map[string]interface{}
				if err := json.Unmarshal([]byte(jsonStr), &params); err != nil {
					s.logger.Warn("failed to parse action input JSON", "error", err, "json", jsonStr)
					return map[string]interface{}{"raw": jsonStr}
				}
				return params
			}
		}
	}
	return nil
}
