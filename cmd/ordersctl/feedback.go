package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

func newFeedbackCmd(s *state) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "feedback [order-id] [accept|reject]",
		Short: "Record an operator verdict on an order",
		Long:  `Rejecting an order counts it as a false positive in the daily statistics.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil || orderID <= 0 {
				return fmt.Errorf("order id must be a positive number, got %q", args[0])
			}
			feedback := models.FeedbackType(strings.ToLower(args[1]))
			if !feedback.Valid() {
				return fmt.Errorf("verdict must be accept or reject, got %q", args[1])
			}

			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			var reasonPtr *string
			if reason != "" {
				reasonPtr = &reason
			}
			if err := a.Coordinator.Review(cmd.Context(), orderID, feedback, reasonPtr); err != nil {
				if models.IsKind(err, models.KindNotFound) {
					return fmt.Errorf("order #%d not found", orderID)
				}
				return err
			}
			cmd.Printf("Order #%d: %s\n", orderID, feedback)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason for the verdict")
	return cmd
}
