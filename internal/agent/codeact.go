// Package agent implements the CodeAct chat agent: an LLM-driven loop
// that writes code, runs it in a sandbox through the action executor, and
// folds the execution output back into the conversation.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/events"
	"github.com/mkarolys/handbox/internal/llm"
)

const systemPrompt = `You are a coding assistant with access to a sandbox.
When a task needs computation, reply with a fenced code block (python,
javascript, bash, or sh). The block will be executed and you will see its
output. When you have the final answer, reply without a code block.`

// Config tunes the CodeAct loop.
type Config struct {
	// Language is the default when a fenced block carries no tag.
	Language string
	// MaxIterations bounds the write-run-observe loop per message.
	MaxIterations int
	// MaxCodeLines rejects absurdly large snippets before execution.
	MaxCodeLines int
	// SandboxTimeout is the per-execution deadline.
	SandboxTimeout time.Duration
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		Language:       "python",
		MaxIterations:  5,
		MaxCodeLines:   200,
		SandboxTimeout: 30 * time.Second,
	}
}

// State reports what the agent is doing right now.
type State string

const (
	StateIdle      State = "idle"
	StateThinking  State = "thinking"
	StateExecuting State = "executing"
)

// Output is the agent's answer to one user message.
type Output struct {
	// Response is the text shown to the user.
	Response string `json:"response"`
	// Executed reports whether any code ran while producing the response.
	Executed bool `json:"executed"`
	// Metadata carries execution details: count, last output, model.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CodeAct is the agent. A nil llm.Client degrades it to direct mode:
// code blocks found in the user's own message are executed and their
// output returned, with no model in the loop.
type CodeAct struct {
	llm    llm.Client
	exec   *action.Executor
	bus    *events.Bus
	log    *zap.Logger
	config Config

	mu         sync.Mutex
	state      State
	executions int
}

// New creates a CodeAct agent. client and bus may be nil.
func New(exec *action.Executor, client llm.Client, bus *events.Bus, cfg Config, logger *zap.Logger) *CodeAct {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1
	}
	if cfg.MaxCodeLines <= 0 {
		cfg.MaxCodeLines = 200
	}
	if cfg.SandboxTimeout <= 0 {
		cfg.SandboxTimeout = 30 * time.Second
	}
	return &CodeAct{
		llm:    client,
		exec:   exec,
		bus:    bus,
		log:    logger,
		config: cfg,
		state:  StateIdle,
	}
}

// State returns the agent's current state.
func (a *CodeAct) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *CodeAct) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Executions returns how many code blocks the agent has run so far.
func (a *CodeAct) Executions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executions
}

// Respond produces the agent's answer to the conversation. The last
// message is the one being answered.
func (a *CodeAct) Respond(ctx context.Context, conversationID string, messages []llm.Message) (*Output, error) {
	if len(messages) == 0 {
		return &Output{Response: "Hello! Send me a task and I will write and run code for it."}, nil
	}

	a.setState(StateThinking)
	defer a.setState(StateIdle)

	if a.llm == nil {
		return a.respondDirect(ctx, conversationID, messages[len(messages)-1].Content)
	}
	return a.respondWithModel(ctx, conversationID, messages)
}

// respondDirect executes code found in the user's own message.
func (a *CodeAct) respondDirect(ctx context.Context, conversationID, input string) (*Output, error) {
	block, ok := a.extractBlock(input)
	if !ok {
		return &Output{
			Response: "I did not find a runnable code block in your message. " +
				"Wrap code in a fenced block and I will execute it.",
		}, nil
	}

	result := a.runBlock(ctx, block)
	a.publishMessage(conversationID, result)
	return &Output{
		Response: fmt.Sprintf("Executed your %s code:\n\n%s", block.language, result),
		Executed: true,
		Metadata: map[string]any{
			"language":        block.language,
			"execution_count": a.Executions(),
		},
	}, nil
}

// respondWithModel runs the write-run-observe loop against the LLM.
func (a *CodeAct) respondWithModel(ctx context.Context, conversationID string, messages []llm.Message) (*Output, error) {
	convo := make([]llm.Message, 0, len(messages)+1+2*a.config.MaxIterations)
	convo = append(convo, llm.Message{Role: "system", Content: systemPrompt})
	convo = append(convo, messages...)

	executed := false
	var reply string

	for i := 0; i < a.config.MaxIterations; i++ {
		completion, err := a.llm.Complete(ctx, convo)
		if err != nil {
			return nil, fmt.Errorf("agent: completion failed: %w", err)
		}
		reply = completion.Content

		block, ok := a.extractBlock(reply)
		if !ok {
			break
		}

		executed = true
		output := a.runBlock(ctx, block)
		a.publishMessage(conversationID, output)

		convo = append(convo,
			llm.Message{Role: "assistant", Content: reply},
			llm.Message{Role: "user", Content: "Execution output:\n" + output},
		)
	}

	meta := map[string]any{
		"model":           a.llm.Model(),
		"execution_count": a.Executions(),
	}
	return &Output{Response: reply, Executed: executed, Metadata: meta}, nil
}

// runBlock executes one code block through the action executor and
// renders the result as text for the conversation.
func (a *CodeAct) runBlock(ctx context.Context, block fencedBlock) string {
	a.mu.Lock()
	a.state = StateExecuting
	a.executions++
	a.mu.Unlock()
	defer a.setState(StateThinking)

	resp := a.exec.Execute(ctx, action.Request{
		Type: action.TypeRunCode,
		Params: action.RunCodeParams{
			Code:     block.code,
			Language: block.language,
		},
		Timeout: a.config.SandboxTimeout,
	}, "")

	a.log.Debug("agent code execution",
		zap.String("language", block.language),
		zap.String("status", string(resp.Status)))

	switch resp.Status {
	case action.StatusCompleted:
		output, _ := resp.Result["output"].(string)
		if strings.TrimSpace(output) == "" {
			output = "(no output)"
		}
		if success, ok := resp.Result["success"].(bool); ok && !success {
			return fmt.Sprintf("%s\n(exit code %v)", output, resp.Result["returnCode"])
		}
		return output
	case action.StatusTimedOut:
		return "execution timed out"
	default:
		return "execution failed: " + resp.Error
	}
}

func (a *CodeAct) publishMessage(conversationID, content string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(events.New(events.KindAgentMessage, conversationID, map[string]any{
		"content": content,
	}))
}

// fencedBlock is one extracted code block.
type fencedBlock struct {
	language string
	code     string
}

var fencedBlockRe = regexp.MustCompile("```([a-zA-Z0-9]*)\\s*\\n([\\s\\S]*?)```")

// extractBlock finds the first fenced code block in text. Blocks without
// a language tag get the configured default; oversized blocks are skipped.
func (a *CodeAct) extractBlock(text string) (fencedBlock, bool) {
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		code := strings.TrimSpace(m[2])
		if code == "" {
			continue
		}
		if strings.Count(code, "\n")+1 > a.config.MaxCodeLines {
			continue
		}
		language := strings.ToLower(m[1])
		if language == "" {
			language = a.config.Language
		}
		return fencedBlock{language: language, code: code}, true
	}
	return fencedBlock{}, false
}
