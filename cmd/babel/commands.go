package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/dkells/babel-client/internal/api"
	"github.com/dkells/babel-client/internal/session"
	"github.com/dkells/babel-client/pkg/types"
)

var errNotLoggedIn = errors.New("not logged in; run `babel login <username> <country>` first")

func currentSession(store *session.Store) (session.Session, error) {
	if sess, ok := store.Current(); ok {
		return sess, nil
	}
	return session.Session{}, errNotLoggedIn
}

func newLoginCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <country>",
		Short: "Authenticate and persist the session locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, country := args[0], strings.ToUpper(args[1])
			if _, ok := types.CountryNames[country]; !ok {
				return fmt.Errorf("unknown country %q (expected one of A-D)", country)
			}

			_, store, err := cfg.clients()
			if err != nil {
				return err
			}
			sess, err := store.Login(cmd.Context(), username, country)
			if err != nil {
				return err
			}

			fmt.Printf("logged in as %s (%s)\n", sess.PlayerName, types.CountryName(country))
			return nil
		},
	}
}

func newLogoutCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			_, store, err := cfg.clients()
			if err != nil {
				return err
			}
			return store.Clear()
		},
	}
}

func newRoomsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List or create rooms",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active room ids",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			apiClient, _, err := cfg.clients()
			if err != nil {
				return err
			}
			rooms, err := apiClient.ListRooms(c.Context())
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Println("no active rooms")
				return nil
			}
			for _, id := range rooms {
				fmt.Println(id)
			}
			return nil
		},
	})

	var local bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room and print its id",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			if local {
				// Offline id; the server creates the room on first connect.
				id, err := api.GenerateRoomID()
				if err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), id)
				return nil
			}

			apiClient, store, err := cfg.clients()
			if err != nil {
				return err
			}
			sess, err := currentSession(store)
			if err != nil {
				return err
			}
			id, err := apiClient.CreateRoom(c.Context(), sess.Token)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().BoolVar(&local, "local", false, "generate a room id locally without asking the server")
	cmd.AddCommand(create)

	return cmd
}

func newNotesCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <room-id> <country>=<word,word...> ...",
		Short: "Submit banned-word hypotheses over HTTP and print progress",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			notes, err := parseNotes(args[1:])
			if err != nil {
				return err
			}

			apiClient, store, err := cfg.clients()
			if err != nil {
				return err
			}
			sess, err := currentSession(store)
			if err != nil {
				return err
			}

			progress, err := apiClient.SubmitNotes(c.Context(), sess.Token, args[0], notes)
			if err != nil {
				return err
			}
			fmt.Printf("discovered %d/%d", progress.DiscoveredCount, progress.TotalRequired)
			if progress.VictoryAchieved {
				fmt.Print(" - victory!")
			}
			fmt.Println()
			return nil
		},
	}
}

func newSolveCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "solve <room-id>",
		Short: "Ask the server to judge the merged notes of every player",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			apiClient, store, err := cfg.clients()
			if err != nil {
				return err
			}
			sess, err := currentSession(store)
			if err != nil {
				return err
			}

			solved, err := apiClient.SolveWithNotes(c.Context(), sess.Token, args[0])
			if err != nil {
				return err
			}
			if solved {
				fmt.Println("solved!")
			} else {
				fmt.Println("not solved yet")
			}
			return nil
		},
	}
}

func newInviteCmd(cfg *Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "invite <room-id>",
		Short: "Write a QR code for the room's web join link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			link := joinLink(cfg.backendURL, args[0])
			if out == "" {
				out = "babel-room-" + args[0] + ".png"
			}
			if err := qrcode.WriteFile(link, qrcode.Medium, 256, out); err != nil {
				return err
			}
			fmt.Printf("%s\nQR written to %s\n", link, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG path")
	return cmd
}

// joinLink points at the web frontend's room route, assuming the SPA is
// served next to the API.
func joinLink(backendURL string, roomID types.RoomID) string {
	base := strings.TrimSuffix(backendURL, "/")
	base = strings.TrimSuffix(base, "/api")
	return base + "/room/" + roomID
}

// parseNotes turns "A=word1,word2" args into the notes mapping.
func parseNotes(args []string) (map[types.CountryCode][]string, error) {
	notes := make(map[types.CountryCode][]string, len(args))
	for _, arg := range args {
		country, list, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid notes argument %q (want country=word,word)", arg)
		}
		country = strings.ToUpper(strings.TrimSpace(country))
		var words []string
		for _, w := range strings.Split(list, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("no words given for country %q", country)
		}
		notes[country] = words
	}
	return notes, nil
}
