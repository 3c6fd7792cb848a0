package relato

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var strengthCmd = &cobra.Command{
	Use:   "strength [person-id]",
	Short: "Recompute relationship strength scores",
	Long: `Recompute the relationship strength score for one person, or for every
person with interaction aggregates when no id is given. Scores are
overwritten in place; recomputation is idempotent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStrength,
}

func init() {
	rootCmd.AddCommand(strengthCmd)
}

func runStrength(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	if len(args) == 1 {
		result, err := client.UpdateRelationshipStrength(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: strength=%.2f trend=%s\n", result.PersonID, result.Strength, result.Trend)
		return nil
	}

	updated, err := client.UpdateAllRelationshipStrengths(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %d relationship strength scores\n", updated)
	return nil
}
