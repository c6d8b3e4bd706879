// ABOUTME: Slash command handlers for the interactive CLI
// ABOUTME: Conversation management, message operations, and transcript export

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/2389/fold-client/internal/conversation"
	"github.com/2389/fold-client/internal/render"
)

func (a *app) handleCommand(ctx context.Context, input string) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printHelp()
	case "/list":
		a.cmdList(ctx)
	case "/open":
		a.cmdOpen(ctx, args)
	case "/new":
		a.coordinator.NewConversation()
		fmt.Println("Started a new conversation")
	case "/show":
		a.cmdShow()
	case "/edit":
		a.cmdEdit(args)
	case "/regen":
		a.cmdRegen(args)
	case "/versions":
		a.cmdVersions(ctx, args)
	case "/select":
		a.cmdSelect(args)
	case "/delete":
		a.cmdDelete(ctx, args)
	case "/purge":
		a.cmdPurge(ctx)
	case "/rewind":
		a.cmdRewind(args)
	case "/resend":
		a.cmdResend(args)
	case "/export":
		a.cmdExport(args)
	default:
		fmt.Printf("Unknown command %s. /help for commands.\n", cmd)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /list                List stored conversations")
	fmt.Println("  /open <id>           Open a stored conversation")
	fmt.Println("  /new                 Start a new conversation")
	fmt.Println("  /show                Show the current transcript")
	fmt.Println("  /edit <id> <text>    Edit a message in place")
	fmt.Println("  /regen <id>          Regenerate the response for a user message")
	fmt.Println("  /versions <id>       List response versions for a user message")
	fmt.Println("  /select <id> <n>     Switch the active response version")
	fmt.Println("  /delete <id>         Delete a message")
	fmt.Println("  /delete conv <id>    Delete a stored conversation")
	fmt.Println("  /purge               Delete all stored conversations")
	fmt.Println("  /rewind <id>         Rewind the conversation back to a message")
	fmt.Println("  /resend <id>         Re-issue a failed send")
	fmt.Println("  /export <file>       Export the transcript as HTML")
	fmt.Println("  /help                Show this help")
	fmt.Println("  /quit                Exit")
}

func (a *app) cmdList(ctx context.Context) {
	summaries, err := a.api.Conversations(ctx)
	if err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No stored conversations")
		return
	}
	fmt.Println("Stored conversations:")
	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s", s.ID, title)
		dimStyle.Printf("  %d messages, updated %s\n", s.MessageCount, s.UpdatedAt.Format(time.DateTime))
	}
}

func (a *app) cmdOpen(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /open <conversation-id>")
		return
	}
	if err := a.coordinator.Open(ctx, args[0]); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Printf("Opened conversation %s\n", args[0])
	a.cmdShow()
}

func (a *app) cmdShow() {
	messages := a.store.Messages()
	if len(messages) == 0 {
		fmt.Println("Conversation is empty")
		return
	}
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			userStyle.Printf("you: %s", msg.Content)
		case "system":
			noticeStyle.Printf("[%s]", msg.Content)
		default:
			replyStyle.Print(msg.Content)
		}
		if msg.IsEdited {
			dimStyle.Print("  (edited)")
		}
		if msg.Failed {
			errorStyle.Print("  (failed)")
		}
		dimStyle.Printf("  [%s]\n", msg.ID)
	}
}

func (a *app) cmdEdit(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: /edit <message-id> <new text>")
		return
	}
	if err := a.coordinator.Edit(args[0], strings.Join(args[1:], " ")); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Println("Edit applied, awaiting server")
}

func (a *app) cmdRegen(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /regen <user-message-id>")
		return
	}
	if err := a.coordinator.Regenerate(args[0]); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Println("Regenerating...")
}

func (a *app) cmdVersions(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /versions <user-message-id>")
		return
	}
	set, ok := a.store.VersionSet(args[0])
	if !ok {
		// Not in the local session; the server may still know the message.
		versions, err := a.api.Versions(ctx, args[0])
		if err != nil {
			errorStyle.Printf("[error] %v\n", err)
			return
		}
		set = conversation.VersionSet{Versions: versions, ActiveIndex: len(versions) - 1}
	}
	if len(set.Versions) == 0 {
		fmt.Println("No response versions yet")
		return
	}
	for i, v := range set.Versions {
		marker := " "
		if i == set.ActiveIndex {
			marker = "*"
		}
		fmt.Printf("%s %d: %s", marker, i, truncate(v.Content, 80))
		dimStyle.Printf("  %s\n", v.CreatedAt.Format(time.DateTime))
	}
}

func (a *app) cmdSelect(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: /select <user-message-id> <version-index>")
		return
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("Version index must be a number")
		return
	}
	if err := a.coordinator.SelectVersion(args[0], index); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Printf("Switched to version %d\n", index)
}

func (a *app) cmdDelete(ctx context.Context, args []string) {
	if len(args) == 2 && args[0] == "conv" {
		if err := a.api.DeleteConversation(ctx, args[1]); err != nil {
			errorStyle.Printf("[error] %v\n", err)
			return
		}
		fmt.Printf("Deleted conversation %s\n", args[1])
		return
	}
	if len(args) != 1 {
		fmt.Println("Usage: /delete <message-id> | /delete conv <conversation-id>")
		return
	}
	if err := a.coordinator.Delete(args[0]); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Println("Delete requested, awaiting server")
}

func (a *app) cmdPurge(ctx context.Context) {
	if err := a.api.DeleteAllConversations(ctx); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	a.coordinator.NewConversation()
	fmt.Println("All stored conversations deleted")
}

func (a *app) cmdRewind(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /rewind <message-id>")
		return
	}
	if err := a.coordinator.Rewind(args[0]); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Println("Rewind requested, awaiting server")
}

func (a *app) cmdResend(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /resend <message-id>")
		return
	}
	if err := a.coordinator.Resend(args[0]); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Println("Resending...")
}

func (a *app) cmdExport(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: /export <file.html>")
		return
	}
	title := a.store.ConversationID()
	if title == "" {
		title = "Conversation"
	}
	html, err := render.Transcript(title, a.store.Messages())
	if err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	if err := os.WriteFile(args[0], html, 0o644); err != nil {
		errorStyle.Printf("[error] %v\n", err)
		return
	}
	fmt.Printf("Exported %d messages to %s\n", a.store.Len(), args[0])
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
