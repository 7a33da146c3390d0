// Command chat talks to the origin service from a terminal, rendering the
// completion stream as it arrives. It does not touch the library.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ai-library-agent/internal/config"
	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/agentstream"
	"ai-library-agent/pkg/backend"
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/thread"

	"github.com/fatih/color"
)

const threadKey = "terminal"

func main() {
	cfg := config.Load()
	client := agentstream.NewClient(backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token), logger.NewNopLogger())

	state := thread.NewState()
	store := actions.NewStore()
	numberer := citation.NewNumberer(nil)

	color.Cyan("Connected to %s. Type a message, /quit to exit, Ctrl-C to stop a reply.", cfg.Backend.BaseURL)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.GreenString("\n> "))
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		}

		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)

		state.BeginStream()
		session := client.Start(context.Background(), threadKey, dto.CompletionPayload{
			ThreadID:  state.ThreadID(),
			LibraryID: cfg.Agent.LibraryID,
			Content:   line,
		}, render(state, store, numberer))

		select {
		case <-session.Done():
		case <-interrupts:
			session.Cancel()
			session.Wait()
			color.Yellow("\n[stopped]")
		}
		signal.Stop(interrupts)
	}
}

func render(state *thread.State, store *actions.Store, numberer *citation.Numberer) agentstream.Handlers {
	h := thread.Binding{State: state, Actions: store}.Handlers(context.Background())

	onDelta := h.OnDelta
	h.OnDelta = func(d agentstream.DeltaEvent) {
		onDelta(d)
		if d.Type == agentstream.DeltaReasoning {
			fmt.Print(color.HiBlackString(d.Delta))
			return
		}
		fmt.Print(d.Delta)
	}

	onToolCall := h.OnToolCall
	h.OnToolCall = func(tc agentstream.ToolCallPayload) {
		onToolCall(tc)
		if tc.Name != "" {
			color.Magenta("\n[tool %s %s]", tc.Name, tc.Status)
		}
	}

	onActions := h.OnProposedActions
	h.OnProposedActions = func(proposed []*actions.ProposedAction) {
		onActions(proposed)
		for _, a := range proposed {
			color.Yellow("\n[proposed %s %s]", a.Type, a.ID)
		}
	}

	onCitation := h.OnCitation
	h.OnCitation = func(c citation.Citation) {
		onCitation(c)
		for _, e := range numberer.Update(state.Citations()) {
			if e.CitationID == c.CitationID {
				color.Blue("\n[%d] %s", e.Marker, e.Metadata.Title)
				break
			}
		}
	}

	onDone := h.OnDone
	h.OnDone = func(messageID string) {
		onDone(messageID)
		fmt.Println()
	}

	onError := h.OnError
	h.OnError = func(se *agentstream.StreamError) {
		onError(se)
		color.Red("\n[%s] %s", se.Kind, se.Message)
	}

	onWarning := h.OnWarning
	h.OnWarning = func(w agentstream.WarningEvent) {
		onWarning(w)
		color.Yellow("\n[warning] %s", w.Message)
	}

	h.OnDecodeError = func(event string, err error) {
		color.Red("\n[bad %s event] %v", event, err)
	}
	return h
}
