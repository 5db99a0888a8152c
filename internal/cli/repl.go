// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/export"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/ui/chat"
	"github.com/jeranaias/chatdesk/internal/ui/styles"
)

// lineReader is the input side of line mode. *liner.State satisfies it.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// repl is the line-mode chat loop. It has no tick loop of its own, so it
// drains the delivery queue whenever the queue signals.
type repl struct {
	mgr    *conversation.Manager
	queue  *delivery.Queue
	worker *delivery.Worker
	costs  chat.CostSource
	out    io.Writer
	logger *slog.Logger

	in         lineReader
	interrupts <-chan os.Signal
	renderer   *glamour.TermRenderer
	model      string
}

func newREPL(mgr *conversation.Manager, q *delivery.Queue, w *delivery.Worker, costs chat.CostSource, out io.Writer, logger *slog.Logger) *repl {
	return &repl{
		mgr:    mgr,
		queue:  q,
		worker: w,
		costs:  costs,
		out:    out,
		logger: logger,
	}
}

func newMarkdownRenderer(theme string, width int) *glamour.TermRenderer {
	style := "notty"
	if ColorsEnabled() {
		style = styles.NewTheme(theme).GlamourStyle()
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil
	}
	return r
}

func (r *repl) run(ctx context.Context) error {
	r.printWelcome()

	for {
		input, err := r.in.Prompt("you> ")
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			r.printGoodbye()
			return nil
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(r.out, DimStyle.Render("Type /quit to leave."))
			continue
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(ctx, input); quit {
				r.printGoodbye()
				return nil
			}
			continue
		}

		r.send(ctx, input)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// send submits text and blocks until the reply is delivered. An interrupt
// while waiting resets the conversation, which cancels the request.
func (r *repl) send(ctx context.Context, text string) {
	if _, err := r.mgr.Submit(ctx, text); err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render(model.ThinkingPlaceholder))

	var reply model.Message
	var callErr error
	done := make(chan struct{})
	err := r.worker.Go("complete", func(jobCtx context.Context) delivery.Update {
		msg, err := r.mgr.Complete(jobCtx)
		return func() {
			reply, callErr = msg, err
			close(done)
		}
	})
	if err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		r.mgr.Reset()
		return
	}

	for {
		select {
		case <-r.queue.Ready():
			r.queue.Drain()
		case <-done:
			r.printReply(reply, callErr)
			return
		case <-r.interrupts:
			r.mgr.Reset()
			fmt.Fprintln(r.out, DimStyle.Render("Request cancelled. Started a new conversation."))
		case <-ctx.Done():
			r.mgr.Reset()
			return
		}
	}
}

func (r *repl) printReply(reply model.Message, err error) {
	switch {
	case errors.Is(err, conversation.ErrDiscarded):
		return
	case err != nil:
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		return
	}

	text := reply.Text()
	fmt.Fprintln(r.out, PromptStyle.Render(reply.Role.Label()+":"))
	if strings.HasPrefix(text, conversation.ErrorPrefix) {
		fmt.Fprintln(r.out, ErrorStyle.Render(text))
		return
	}
	if r.renderer != nil {
		if out, err := r.renderer.Render(text); err == nil {
			fmt.Fprint(r.out, out)
			return
		}
	}
	fmt.Fprintln(r.out, text)
	fmt.Fprintln(r.out)
}

// command runs a slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/reset", "/new", "/clear":
		r.mgr.Reset()
		fmt.Fprintln(r.out, SuccessStyle.Render("Started a new conversation."))
	case "/cost":
		r.printCost(ctx)
	case "/transcript":
		fmt.Fprintln(r.out, RenderField("Transcript", r.mgr.TranscriptPath()))
	case "/export":
		format := ""
		if len(fields) > 1 {
			format = fields[1]
		}
		r.export(format)
	case "/help", "/h":
		r.printHelp()
	default:
		fmt.Fprintln(r.out, ErrorStyle.Render("Unknown command:")+" "+fields[0])
		r.printHelp()
	}
	return false
}

// export writes the conversation next to its transcript.
func (r *repl) export(format string) {
	exp, err := export.ForFormat(format, nil)
	if err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		return
	}
	name := r.mgr.TranscriptName()
	doc := export.NewDocument(name, r.model, r.mgr.Messages())
	path, err := export.ExportToFile(doc, exp, filepath.Dir(r.mgr.TranscriptPath()), name)
	if err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		return
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Exported")+" "+path)
}

func (r *repl) printCost(ctx context.Context) {
	if r.costs == nil {
		return
	}
	total, err := r.costs.MonthlyCost(ctx)
	if err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("Error:")+" "+err.Error())
		return
	}
	fmt.Fprintln(r.out, RenderField("This month", FormatCost(total)))
}

func (r *repl) printWelcome() {
	title := "chatdesk"
	if r.model != "" {
		title += " · " + r.model
	}
	fmt.Fprintln(r.out, TitleStyle.Render(title))
	fmt.Fprintln(r.out, DimStyle.Render("Type a message, or /help for commands."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, RenderField("/reset", "start a new conversation"))
	fmt.Fprintln(r.out, RenderField("/cost", "month-to-date spend"))
	fmt.Fprintln(r.out, RenderField("/transcript", "transcript location"))
	fmt.Fprintln(r.out, RenderField("/export [fmt]", "save as markdown, html or json"))
	fmt.Fprintln(r.out, RenderField("/quit", "leave"))
}

func (r *repl) printGoodbye() {
	if len(r.mgr.Messages()) > 0 {
		fmt.Fprintln(r.out, DimStyle.Render("Transcript saved to "+r.mgr.TranscriptPath()))
	}
}
