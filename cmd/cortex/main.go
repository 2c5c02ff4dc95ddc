package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rahul/cortex/internal/agent"
	"github.com/rahul/cortex/internal/governance"
	"github.com/rahul/cortex/internal/memory"
	"github.com/rahul/cortex/internal/observability"
	"github.com/rahul/cortex/internal/oracle"
	"github.com/rahul/cortex/internal/sandbox"
	"github.com/rahul/cortex/internal/store"
	"github.com/rahul/cortex/internal/tools"
	"github.com/rahul/cortex/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// processingMarker in a final answer means the session produced an
// intermediate artifact that needs another pass over the goal.
const processingMarker = "FURTHER_PROCESSING_REQUIRED"

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg := config.LoadConfig(configPath)

	// Initialize Tools
	registry := tools.NewRegistry()
	tools.RegisterMathTools(registry)

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	registry.Register(tools.NewWebpageTool())
	registry.Register(tools.NewBrowserTool())
	registry.Register(tools.NewStockTool())
	registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))

	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tgTool, err := tools.NewTelegramTool(tgCfg.Token, tgCfg.ChatID)
		if err != nil {
			log.Printf("Warning: Failed to initialize telegram tool: %v", err)
		} else {
			registry.Register(tgTool)
		}
	}

	if dir := filepath.Dir(cfg.Memory.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal(err)
		}
	}
	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer history.Close()

	scorer := memory.NewScorer()
	scorer.MaxBullets = cfg.Memory.MaxBullets
	scorer.MaxChars = cfg.Memory.MaxChars

	gov := governance.NewDefaultPolicyEngine()
	executor := sandbox.NewExecutor(gov, sandbox.Limits{
		Timeout:           time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
		ToolCallQuota:     cfg.Sandbox.ToolCallQuota,
		DiversityLimit:    cfg.Sandbox.ToolDiversityMax,
		RepeatLimit:       cfg.Sandbox.ToolRepeatMax,
		MaxExecutionSteps: cfg.Sandbox.MaxExecutionSteps,
	})

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	loop := &agent.Loop{
		Oracle:     oracle.NewLLM(llm, 90*time.Second),
		Registry:   registry,
		Executor:   executor,
		Scorer:     scorer,
		History:    history,
		Prompts:    agent.NewPromptManager(cfg.Prompts.Directory),
		Logger:     observability.NewLogger(),
		SessionDir: cfg.Sessions.Directory,
		Budgets: agent.Budgets{
			MaxSteps:         cfg.Budgets.MaxSteps,
			MaxRetries:       cfg.Budgets.MaxRetries,
			ResumeExtraSteps: cfg.Budgets.ResumeExtraSteps,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				loop.Logger.LogHeartbeat()
			}
		}
	}()

	repl(ctx, loop)
	observability.CleanupTerminal()
}

// repl reads goals from stdin, runs each to completion, and mediates the
// human side of any escalation.
func repl(ctx context.Context, loop *agent.Loop) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("\ncortex> ")
		if ctx.Err() != nil {
			return
		}
		if !scanner.Scan() {
			return
		}
		goal := strings.TrimSpace(scanner.Text())
		if goal == "" {
			continue
		}
		if goal == "exit" || goal == "quit" {
			return
		}

		session := loop.Run(ctx, goal)
		session = mediate(ctx, loop, scanner, session)

		if session.State == agent.StateComplete {
			answer := session.FinalAnswer
			// An intermediate artifact triggers one more pass with the
			// result folded back into the goal.
			for pass := 0; pass < 2 && strings.Contains(answer, processingMarker); pass++ {
				followup := fmt.Sprintf("Original goal: %s\nIntermediate result: %s\nContinue processing to the final answer.",
					goal, strings.ReplaceAll(answer, processingMarker, ""))
				session = loop.Run(ctx, followup)
				session = mediate(ctx, loop, scanner, session)
				if session.State != agent.StateComplete {
					break
				}
				answer = session.FinalAnswer
			}
			if session.State == agent.StateComplete {
				fmt.Printf("\n%s\n", answer)
			}
		}
	}
}

// mediate handles the awaiting-human state: it shows the escalation to
// the operator and resumes the session with their guidance.
func mediate(ctx context.Context, loop *agent.Loop, scanner *bufio.Scanner, session *agent.Session) *agent.Session {
	for session.State == agent.StateAwaitingHuman {
		step := lastStep(session)
		if step != nil {
			fmt.Printf("\n[%s] %s\n", step.HumanReason, step.HumanMessage)
			for _, line := range step.SuggestedPlan {
				fmt.Printf("  suggested: %s\n", line)
			}
		}
		fmt.Print("guidance (empty to abandon)> ")
		if !scanner.Scan() {
			return session
		}
		guidance := strings.TrimSpace(scanner.Text())
		if guidance == "" {
			fmt.Println("session abandoned")
			return session
		}
		if err := loop.ResumeWithGuidance(ctx, session, guidance); err != nil {
			log.Printf("resume failed: %v", err)
			return session
		}
	}
	return session
}

func lastStep(session *agent.Session) *agent.Step {
	plan := session.CurrentPlan()
	if plan == nil || len(plan.Steps) == 0 {
		return nil
	}
	return plan.Steps[len(plan.Steps)-1]
}
