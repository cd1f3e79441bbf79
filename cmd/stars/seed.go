package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dsuszek/dev-task/migrations"
	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/repo"
	"github.com/dsuszek/dev-task/service"
)

// seedFile is the document read by "stars seed":
//
//	stars:
//	  - name: Sirius
//	    distance: 9
type seedFile struct {
	Stars []models.CreateStarParams `json:"stars" yaml:"stars"`
}

func newSeedCmd(a *app) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Insert stars from a YAML or JSON file in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := readSeedFile(args[0])
			if err != nil {
				return err
			}

			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			if migrateFirst {
				if err := migrations.Up(database, a.logger); err != nil {
					return err
				}
			}

			svc := service.NewStarService(repo.NewStarRepo(database), a.logger,
				service.WithTxRunner(service.NewTxRunner(database)))
			stars, err := svc.Seed(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stars\n", len(stars))
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "apply pending migrations before seeding")
	return cmd
}

// readSeedFile decodes path as JSON when it has a .json extension and as
// YAML otherwise.
func readSeedFile(path string) ([]models.CreateStarParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	var doc seedFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("seed: decode %s: %w", path, err)
	}
	if len(doc.Stars) == 0 {
		return nil, fmt.Errorf("seed: %s contains no stars", path)
	}
	return doc.Stars, nil
}
