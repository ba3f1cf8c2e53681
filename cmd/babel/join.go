package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkells/babel-client/internal/room"
	"github.com/dkells/babel-client/pkg/types"
)

var errRoomOver = errors.New("room over")

func newJoinCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room and chat; /notes, /who, /victory, /leave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd.Context(), cfg, args[0], false)
		},
	}
}

func newSpectateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "spectate <room-id>",
		Short: "Watch a room read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd.Context(), cfg, args[0], true)
		},
	}
}

func runRoom(parent context.Context, cfg *Config, roomID types.RoomID, spectate bool) error {
	apiClient, store, err := cfg.clients()
	if err != nil {
		return err
	}

	var token string
	if !spectate {
		sess, err := currentSession(store)
		if err != nil {
			return err
		}
		token = sess.Token
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := room.NewClient(ctx, apiClient, room.Options{Logger: cfg.logger()})
	defer client.Shutdown()

	if spectate {
		client.Spectate(roomID)
	} else {
		client.Connect(roomID, token)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return printEvents(ctx, client) })
	if !spectate {
		g.Go(func() error { return readInput(ctx, client) })
	}

	err = g.Wait()
	client.Cleanup()
	if errors.Is(err, errRoomOver) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printEvents(ctx context.Context, client *room.Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-client.Events():
			switch ev := ev.(type) {
			case room.StateChanged:
				fmt.Printf("* connection: %s -> %s\n", ev.Old, ev.New)
				if ev.New == room.StateError {
					return errors.New("connection lost; reconnect attempts exhausted")
				}
			case room.MessagesAppended:
				for _, m := range ev.Messages {
					if m.WasCensored {
						fmt.Printf("[%s] %s (censored)\n", m.SenderID, m.Content)
					} else {
						fmt.Printf("[%s] %s\n", m.SenderID, m.Content)
					}
				}
			case room.NotificationPosted:
				fmt.Printf("* %s\n", ev.Message)
			case room.VictoryAchieved:
				fmt.Println("*** VICTORY ***")
				printProgress(ev.State)
			case room.RoomClosed:
				fmt.Println("* room closed by server")
				return errRoomOver
			}
		}
	}
}

func readInput(ctx context.Context, client *room.Client) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				client.LeaveRoom()
				return errRoomOver
			}
			if err := handleLine(client, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

func handleLine(client *room.Client, line string) error {
	switch {
	case line == "":
		return nil

	case line == "/leave":
		client.LeaveRoom()
		return errRoomOver

	case line == "/who":
		v := client.View()
		if v.Room == nil {
			fmt.Println("no room state yet")
			return nil
		}
		for _, p := range v.Room.Participants {
			fmt.Printf("%s (%s)\n", p.UserID, types.CountryName(p.Country))
		}
		return nil

	case line == "/victory":
		v := client.View()
		if v.Victory == nil {
			fmt.Println("no victory state yet")
			return nil
		}
		printProgress(*v.Victory)
		return nil

	case strings.HasPrefix(line, "/notes "):
		notes, err := parseNotes(strings.Fields(line)[1:])
		if err != nil {
			fmt.Println(err)
			return nil
		}
		client.SubmitNotes(notes)
		return nil

	case strings.HasPrefix(line, "/batch "):
		var texts []string
		for _, t := range strings.Split(strings.TrimPrefix(line, "/batch "), ";") {
			if t = strings.TrimSpace(t); t != "" {
				texts = append(texts, t)
			}
		}
		client.SendMessageBatch(texts)
		return nil

	case strings.HasPrefix(line, "/"):
		fmt.Println("commands: /notes <country>=<words>, /batch a;b, /who, /victory, /leave")
		return nil

	default:
		client.SendMessage(line)
		return nil
	}
}

func printProgress(v types.VictoryState) {
	for _, p := range v.PlayerProgress {
		fmt.Printf("  %s (%s): %d/%d\n", p.UserID, types.CountryName(p.Country), p.DiscoveredCount, p.TotalRequired)
	}
}
