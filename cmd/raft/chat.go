package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/workflow"
)

const chatSystem = "You are a helpful assistant. Answer from your fine-tuned knowledge and say so when you do not know."

func cmdChat(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	roleName := fs.String("role", "student", "Model role to chat with (student|baseline|teacher)")
	temperature := fs.Float64("temperature", 0.7, "Sampling temperature")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	role := models.Role(strings.ToLower(*roleName))
	switch role {
	case models.RoleStudent, models.RoleBaseline, models.RoleTeacher:
	default:
		color.Red("✗ cannot chat with role %q", *roleName)
		return workflow.ExitConfig
	}

	engine, err := llm.ForRole(role, runner.State.Getenv, *temperature, 0)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	color.Cyan("\nChat with the %s model %s (type 'exit' to quit)", role, engine.Deployment())

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	history := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, chatSystem),
	}

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}

		history = append(history, llms.TextParts(schema.ChatMessageTypeHuman, query))

		stream, err := engine.ConverseStream(ctx, history)
		if err != nil {
			color.Red("Error: %v\n", err)
			// Drop the failed turn so the history stays consistent.
			history = history[:len(history)-1]
			continue
		}

		assistantPrompt("\nAssistant: ")
		var reply strings.Builder
		for chunk := range stream {
			assistantPrompt("%s", chunk)
			reply.WriteString(chunk)
		}
		fmt.Println()

		if reply.Len() == 0 {
			history = history[:len(history)-1]
			continue
		}
		history = append(history, llms.TextParts(schema.ChatMessageTypeAI, reply.String()))
	}

	return workflow.ExitOK
}
