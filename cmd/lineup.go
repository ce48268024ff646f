package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cellardesk/cellar-cli/internal/model"
)

var (
	lineupSeats      int
	lineupProtein    string
	lineupSauce      string
	lineupSpice      string
	lineupSmoke      string
	lineupCandidates string
)

var lineupCmd = &cobra.Command{
	Use:   "lineup",
	Short: "Build a light-to-bold dinner lineup for a dish",
	Long:  "Scores every candidate bottle against the dish, keeps the best pairings, and orders them by ascending power. Candidates come from the store's in-stock inventory, or from a JSON file via --candidates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		food := model.FoodProfile{
			Protein:    model.Protein(lineupProtein),
			Sauce:      model.Sauce(lineupSauce),
			SpiceLevel: model.Level(lineupSpice),
			SmokeLevel: model.Level(lineupSmoke),
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var bottles []model.Bottle
		if lineupCandidates != "" {
			data, err := os.ReadFile(lineupCandidates)
			if err != nil {
				return eris.Wrap(err, "read candidates file")
			}
			if err := json.Unmarshal(data, &bottles); err != nil {
				return eris.Wrap(err, "decode candidates file")
			}
		} else {
			bottles, err = env.Store.GetInStockBottles(ctx)
			if err != nil {
				return err
			}
		}

		ranked := env.Orderer.Order(bottles, food, lineupSeats)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	},
}

func init() {
	lineupCmd.Flags().IntVar(&lineupSeats, "seats", 4, "number of guests")
	lineupCmd.Flags().StringVar(&lineupProtein, "protein", "", "dish protein (beef, lamb, pork, poultry, fish, vegetarian)")
	lineupCmd.Flags().StringVar(&lineupSauce, "sauce", "", "sauce style (tomato, cream, bbq, rich)")
	lineupCmd.Flags().StringVar(&lineupSpice, "spice", "", "spice level (low, med, high)")
	lineupCmd.Flags().StringVar(&lineupSmoke, "smoke", "", "smoke level (low, med, high)")
	lineupCmd.Flags().StringVar(&lineupCandidates, "candidates", "", "JSON file of candidate bottles (default: in-stock inventory)")
	rootCmd.AddCommand(lineupCmd)
}
