package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch <issue-id>",
	Short: "Follow an analysis live",
	Long: `Subscribe to an issue's event stream. The persisted history is
replayed first, then events stream as they happen. Lines typed at the
prompt are sent to the analysis as answers when it is waiting for input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID := args[0]

		wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/issues/" + issueID + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
		}
		defer conn.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          color.New(color.FgCyan).Sprint("> "),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var event hub.Event
				if err := conn.ReadJSON(&event); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						fmt.Fprintln(rl.Stdout(), color.New(color.FgGreen).Sprint("Analysis finished."))
					} else {
						fmt.Fprintf(rl.Stdout(), "Connection lost: %v\n", err)
					}
					return
				}
				printEvent(rl.Stdout(), event)
			}
		}()

		for {
			select {
			case <-done:
				return nil
			default:
			}

			line, err := rl.Readline()
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			payload := struct {
				Content string `json:"content"`
			}{Content: line}
			if err := conn.WriteJSON(payload); err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
		}
	},
}

// printEvent renders one stream event for the terminal
func printEvent(w io.Writer, event hub.Event) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	switch event.Kind {
	case hub.EventMessage:
		msg := event.Message
		if msg == nil {
			return
		}
		switch msg.Role {
		case types.RoleAssistant:
			fmt.Fprintf(w, "%s %s\n", color.New(color.FgCyan).Sprint("assistant:"), msg.Content)
		case types.RoleUser:
			fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("user:"), msg.Content)
		default:
			fmt.Fprintf(w, "%s\n", gray(msg.Content))
		}
	case hub.EventStatus:
		glyph := statusGlyph(event.Status)
		fmt.Fprintf(w, "%s\n", yellow(fmt.Sprintf("%s status: %s", glyph, event.Status)))
		if event.Status == types.StatusWaitingForInput {
			fmt.Fprintf(w, "%s\n", yellow("The analysis needs more information. Type your answer below."))
		}
	case hub.EventContext:
		fmt.Fprintf(w, "%s\n", gray(fmt.Sprintf("[%s context attached]", event.ContextKind)))
	case hub.EventSolution:
		if event.Solution != nil {
			fmt.Fprintf(w, "\n%s\n", event.Solution.Markdown())
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
