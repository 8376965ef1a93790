package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

func newChatsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage monitored chats",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List known chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			var chats []models.Chat
			if all {
				chats, err = a.Chats.GetAll(cmd.Context())
			} else {
				chats, err = a.Chats.GetActive(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list chats: %w", err)
			}
			if len(chats) == 0 {
				cmd.Println("No chats found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT ID\tNAME\tTYPE\tACTIVE\tLAST MESSAGE")
			for _, c := range chats {
				last := "-"
				if c.LastMessageAt != nil {
					last = c.LastMessageAt.In(a.Location).Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", c.ChatID, c.ChatName, c.ChatType, c.IsActive, last)
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "Include inactive chats")

	cmd.AddCommand(list, newChatToggleCmd(s, "deactivate", false), newChatToggleCmd(s, "activate", true))
	return cmd
}

func newChatToggleCmd(s *state, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [chat-id]",
		Short: fmt.Sprintf("Mark a chat %s", map[bool]string{true: "active", false: "inactive"}[active]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			if active {
				err = a.Chats.Activate(cmd.Context(), args[0])
			} else {
				err = a.Chats.Deactivate(cmd.Context(), args[0])
			}
			if err != nil {
				if models.IsKind(err, models.KindNotFound) {
					return fmt.Errorf("chat %s not found", args[0])
				}
				return err
			}
			cmd.Printf("Chat %s %sd\n", args[0], use)
			return nil
		},
	}
}
