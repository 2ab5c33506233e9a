package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/amishk599/jobsync/internal/tagger"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage the company, designation and city directories",
}

var entitiesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import entities and their aliases from a YAML file",
	Long: `Imports a YAML list of entities:

  - kind: company
    name: Acme Technologies
    aliases: [acme, acme tech]
  - kind: designation
    name: Backend Engineer
    aliases: [backend developer, server side engineer]

Importing is idempotent; aliases are matched after normalization.`,
	Args: cobra.ExactArgs(1),
	RunE: runEntitiesImport,
}

var entitiesListKind string

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities of one kind",
	RunE:  runEntitiesList,
}

func init() {
	entitiesListCmd.Flags().StringVar(&entitiesListKind, "kind", string(model.EntityCompany), "company, designation or city")
	entitiesCmd.AddCommand(entitiesImportCmd, entitiesListCmd)
	rootCmd.AddCommand(entitiesCmd)
}

type entityRecord struct {
	Kind    string   `yaml:"kind"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

func parseEntityKind(s string) (model.EntityKind, error) {
	kind := model.EntityKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case model.EntityCompany, model.EntityDesignation, model.EntityCity:
		return kind, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func loadEntityFile(path string) ([]entityRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entity file: %w", err)
	}
	var records []entityRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing entity file: %w", err)
	}
	for i, r := range records {
		if _, err := parseEntityKind(r.Kind); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("entity %d: name is required", i)
		}
	}
	return records, nil
}

func runEntitiesImport(cmd *cobra.Command, args []string) error {
	records, err := loadEntityFile(args[0])
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, st *store.Store) error {
		counts := make(map[model.EntityKind]int)
		for _, r := range records {
			kind, _ := parseEntityKind(r.Kind)
			if _, err := tagger.Import(ctx, st, kind, r.Name, r.Aliases...); err != nil {
				return err
			}
			counts[kind]++
		}
		fmt.Printf("imported %d companies, %d designations, %d cities\n",
			counts[model.EntityCompany], counts[model.EntityDesignation], counts[model.EntityCity])
		return nil
	})
}

func runEntitiesList(cmd *cobra.Command, args []string) error {
	kind, err := parseEntityKind(entitiesListKind)
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, st *store.Store) error {
		entities, err := st.ListEntities(ctx, kind)
		if err != nil {
			return err
		}
		for _, e := range entities {
			fmt.Printf("%-6d %s\n", e.ID, e.Name)
		}
		fmt.Printf("\nTotal: %d %s entities\n", len(entities), kind)
		return nil
	})
}
