package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bankguard/internal/app"
	compliancemodels "bankguard/internal/compliance/models"
	"bankguard/internal/knowledge"
	dErrors "bankguard/pkg/domain-errors"
)

// SeedFile is the YAML document accepted by seed.
type SeedFile struct {
	Roles     []SeedRole          `yaml:"roles"`
	Rules     []SeedRule          `yaml:"rules"`
	Knowledge []knowledge.Article `yaml:"knowledge"`
}

type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type SeedRule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Definition  string `yaml:"definition"`
	Active      *bool  `yaml:"active"`
	Priority    int    `yaml:"priority"`
}

func (r SeedRule) spec() compliancemodels.RuleSpec {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return compliancemodels.RuleSpec{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Definition:  r.Definition,
		Active:      active,
		Priority:    r.Priority,
	}
}

// SeedResult counts what seed changed.
type SeedResult struct {
	RolesCreated  int
	RolesUpdated  int
	RulesCreated  int
	RulesSkipped  int
	ArticlesAdded int
}

// ParseSeedFile decodes a seed document, rejecting unknown fields.
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f SeedFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &f, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed --file <seed.yaml>",
		Short: "Create or update roles, compliance rules and knowledge articles",
		Long: `Seed applies a YAML document with roles, rules and knowledge sections.

Roles are matched by name and updated in place. Rules are created unless an
active rule with the same name exists. Articles are upserted by id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			seed, err := ParseSeedFile(f)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				res, err := Seed(ctx, a, seed)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"roles: %d created, %d updated\nrules: %d created, %d skipped\nknowledge: %d articles\n",
					res.RolesCreated, res.RolesUpdated, res.RulesCreated, res.RulesSkipped, res.ArticlesAdded)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "seed file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// Seed applies the document through the services so every change is
// validated and audited.
func Seed(ctx context.Context, a *app.App, seed *SeedFile) (*SeedResult, error) {
	res := &SeedResult{}
	for _, r := range seed.Roles {
		existing, err := a.RBAC.GetRoleByName(ctx, r.Name)
		switch {
		case err == nil:
			if _, err := a.RBAC.UpdateRole(ctx, existing.ID, r.Name, r.Description, r.Permissions); err != nil {
				return nil, fmt.Errorf("update role %q: %w", r.Name, err)
			}
			res.RolesUpdated++
		case dErrors.Is(err, dErrors.CodeNotFound):
			if _, err := a.RBAC.CreateRole(ctx, r.Name, r.Description, r.Permissions); err != nil {
				return nil, fmt.Errorf("create role %q: %w", r.Name, err)
			}
			res.RolesCreated++
		default:
			return nil, fmt.Errorf("look up role %q: %w", r.Name, err)
		}
	}

	if len(seed.Rules) > 0 {
		active, err := a.Compliance.ActiveRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active rules: %w", err)
		}
		names := make(map[string]bool, len(active))
		for _, rule := range active {
			names[rule.Name] = true
		}
		for _, r := range seed.Rules {
			if names[r.Name] {
				res.RulesSkipped++
				continue
			}
			if _, err := a.Compliance.CreateRule(ctx, r.spec()); err != nil {
				return nil, fmt.Errorf("create rule %q: %w", r.Name, err)
			}
			names[r.Name] = true
			res.RulesCreated++
		}
	}

	if len(seed.Knowledge) > 0 {
		if err := a.Knowledge.Add(ctx, seed.Knowledge...); err != nil {
			return nil, fmt.Errorf("add knowledge: %w", err)
		}
		res.ArticlesAdded = len(seed.Knowledge)
	}
	return res, nil
}
