// Package seed loads categories and budgets for a user from a TOML file.
//
// A seed file looks like:
//
//	user_email = "sam@example.com"
//
//	[[categories]]
//	name = "Food"
//	type = "expense"
//
//	[[categories]]
//	name = "Groceries"
//	type = "expense"
//	parent = "Food"
//
//	[[budgets]]
//	name = "Groceries"
//	category = "Groceries"
//	amount = "600.00"
//	cadence = "monthly"
//	start_date = "2025-03-01"
//	rollover_policy = "surplus_only"
package seed

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"budgetkit/internal/budget"
	"budgetkit/internal/models"
	"budgetkit/internal/services"
	customvalidator "budgetkit/internal/validator"
)

// File is the decoded seed file.
type File struct {
	UserEmail  string     `toml:"user_email" validate:"required,email"`
	Categories []Category `toml:"categories" validate:"dive"`
	Budgets    []Budget   `toml:"budgets" validate:"dive"`
}

// Category is one category to create. Parent names an earlier category.
type Category struct {
	Name        string `toml:"name" validate:"required,max=100"`
	Type        string `toml:"type" validate:"required,category_type"`
	Description string `toml:"description"`
	Icon        string `toml:"icon"`
	Color       string `toml:"color" validate:"omitempty,hex_color"`
	Parent      string `toml:"parent"`
}

// Budget is one budget to create against a category named in the file.
type Budget struct {
	Name                 string `toml:"name" validate:"required,max=100"`
	Category             string `toml:"category" validate:"required"`
	Amount               string `toml:"amount" validate:"required,money"`
	Cadence              string `toml:"cadence" validate:"required,budget_cadence"`
	StartDate            string `toml:"start_date" validate:"required,datetime=2006-01-02"`
	RolloverPolicy       string `toml:"rollover_policy" validate:"omitempty,rollover_policy"`
	IncludeSubcategories bool   `toml:"include_subcategories"`
}

// Result counts what Apply created.
type Result struct {
	Categories int
	Budgets    int
}

// Load decodes and validates the seed file at path.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field formats and that every category reference resolves
// to a category defined earlier in the file.
func (f *File) Validate() error {
	v := validator.New()
	customvalidator.RegisterOn(v)
	if err := v.Struct(f); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		if seen[c.Name] {
			return fmt.Errorf("category %q is defined twice", c.Name)
		}
		if c.Parent != "" && !seen[c.Parent] {
			return fmt.Errorf("category %q: parent %q must be defined before it", c.Name, c.Parent)
		}
		seen[c.Name] = true
	}
	for _, b := range f.Budgets {
		if !seen[b.Category] {
			return fmt.Errorf("budget %q: unknown category %q", b.Name, b.Category)
		}
	}
	return nil
}

// Apply creates the file's categories and budgets for its user. Budgets open
// their first period like any budget created through the API.
func Apply(f *File, users services.UserServicer, categories services.CategoryServicer, budgets services.BudgetServicer) (*Result, error) {
	user, err := users.GetUserByEmail(f.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", f.UserEmail, err)
	}

	ids := make(map[string]string, len(f.Categories))
	result := &Result{}
	for _, c := range f.Categories {
		var parentID *string
		if c.Parent != "" {
			id := ids[c.Parent]
			parentID = &id
		}
		created, err := categories.CreateCategory(user.ID, services.CategoryInput{
			Name:        c.Name,
			Type:        models.CategoryType(c.Type),
			Description: c.Description,
			Icon:        c.Icon,
			Color:       c.Color,
			ParentID:    parentID,
		})
		if err != nil {
			return result, fmt.Errorf("create category %q: %w", c.Name, err)
		}
		ids[c.Name] = created.ID
		result.Categories++
	}

	for _, b := range f.Budgets {
		amount, err := budget.ParseMoney(b.Amount)
		if err != nil {
			return result, fmt.Errorf("budget %q: %w", b.Name, err)
		}
		start, err := time.Parse(time.DateOnly, b.StartDate)
		if err != nil {
			return result, fmt.Errorf("budget %q: %w", b.Name, err)
		}
		_, err = budgets.CreateBudget(user.ID, services.CreateBudgetInput{
			CategoryID:           ids[b.Category],
			Name:                 b.Name,
			Amount:               int64(amount),
			Cadence:              budget.Cadence(b.Cadence),
			StartDate:            start,
			RolloverPolicy:       budget.Policy(b.RolloverPolicy),
			IncludeSubcategories: b.IncludeSubcategories,
		})
		if err != nil {
			return result, fmt.Errorf("create budget %q: %w", b.Name, err)
		}
		result.Budgets++
	}
	return result, nil
}
