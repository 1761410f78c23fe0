package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/client"
	"github.com/JeffZl/frontenduas/internal/logger"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{Name: "server", Value: "http://localhost:8000", EnvVars: []string{"DM_SERVER"}},
	&cli.StringFlag{Name: "token", Required: true, EnvVars: []string{"DM_TOKEN"}},
	&cli.StringFlag{Name: "cookie", Value: "session_token", Usage: "session cookie name"},
}

func apiClient(c *cli.Context) (*client.Client, error) {
	return client.New(c.String("server"), c.String("token"), client.WithCookieName(c.String("cookie")))
}

func cliLogger(c *cli.Context) *zap.Logger {
	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Development: true, Level: level})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// resolveConversation accepts a conversation id or, with --to, a handle.
func resolveConversation(c *cli.Context, api *client.Client) (string, error) {
	if id := c.String("conversation"); id != "" {
		return id, nil
	}
	if to := c.String("to"); to != "" {
		conv, _, err := api.GetOrCreateConversation(c.Context, to)
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	return "", nil
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send one message; failures are reported, not retried",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}},
			&cli.StringFlag{Name: "to", Usage: "participant handle (starts the conversation if needed)"},
			&cli.StringFlag{Name: "content", Required: true},
		}, serverFlags...),
		Action: func(c *cli.Context) error {
			api, err := apiClient(c)
			if err != nil {
				return err
			}
			id, err := resolveConversation(c, api)
			if err != nil {
				return err
			}
			if id == "" {
				return errors.New("one of --conversation or --to is required")
			}
			msg, err := api.SendMessage(c.Context, id, c.String("content"), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "sent %s at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "poll the inbox (and optionally one conversation) and print changes",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}},
			&cli.StringFlag{Name: "to", Usage: "open the conversation with this handle"},
			&cli.BoolFlag{Name: "push", Usage: "also listen on the websocket for early refreshes"},
			&cli.BoolFlag{Name: "mark-read", Usage: "mark the open conversation read when it changes"},
			&cli.DurationFlag{Name: "list-interval", Value: client.DefaultListInterval},
			&cli.DurationFlag{Name: "conversation-interval", Value: client.DefaultConversationInterval},
		}, serverFlags...),
		Action: func(c *cli.Context) error {
			log := cliLogger(c)
			defer log.Sync()

			api, err := apiClient(c)
			if err != nil {
				return err
			}
			id, err := resolveConversation(c, api)
			if err != nil {
				return err
			}

			st := client.NewStore(api, log)
			printer := &statePrinter{w: c.App.Writer}
			unsubscribe := st.Subscribe(printer.print)
			defer unsubscribe()
			if id != "" {
				st.Open(id)
			}

			poller := client.NewPoller(st, log)
			poller.ListInterval = c.Duration("list-interval")
			poller.ConversationInterval = c.Duration("conversation-interval")

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			errc := make(chan error, 2)
			running := 1
			go func() { errc <- poller.Run(ctx) }()
			if c.Bool("push") {
				stream := client.NewStream(api, st, log)
				running++
				go func() { errc <- stream.Run(ctx) }()
			}
			if c.Bool("mark-read") && id != "" {
				stopMarking := st.Subscribe(func(client.State) {
					if err := st.MarkOpenRead(ctx); err != nil {
						log.Warn("mark read failed", zap.Error(err))
					}
				})
				defer stopMarking()
			}

			// The first loop to stop takes the other down with it.
			err = <-errc
			cancel()
			for i := 1; i < running; i++ {
				<-errc
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

type statePrinter struct {
	mu       sync.Mutex
	w        io.Writer
	lastSeen map[string]bool
}

func (p *statePrinter) print(s client.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSeen == nil {
		p.lastSeen = make(map[string]bool)
	}
	fmt.Fprintf(p.w, "-- %s: %d conversations\n", time.Now().Format(time.TimeOnly), len(s.Conversations))
	for _, conv := range s.Conversations {
		last := "(no messages)"
		if conv.LastMessage != nil {
			last = conv.LastMessage.Content
		}
		marker := " "
		if conv.ID == s.OpenConversationID {
			marker = "*"
		}
		fmt.Fprintf(p.w, "%s @%-16s unread=%-3d %s\n", marker, conv.Participant.Handle, conv.UnreadCount, last)
	}
	for _, m := range s.Messages {
		if p.lastSeen[m.ID] {
			continue
		}
		p.lastSeen[m.ID] = true
		from := m.SenderID
		if m.Sender != nil {
			from = "@" + m.Sender.Handle
		}
		fmt.Fprintf(p.w, "   [%s] %s: %s\n", m.CreatedAt.Format(time.TimeOnly), from, m.Content)
	}
}
