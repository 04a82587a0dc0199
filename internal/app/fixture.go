package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
)

// Fixture is a JSON snapshot of officers and customers
type Fixture struct {
	Officers  []*domain.Officer  `json:"officers"`
	Customers []*domain.Customer `json:"customers"`
}

// ReadFixture decodes and validates a fixture
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	if err := f.normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReadFixtureFile reads a fixture from path
func ReadFixtureFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFixture(file)
}

func (f *Fixture) normalize() error {
	now := time.Now().UTC()
	seen := make(map[string]bool)

	for i, o := range f.Officers {
		if o == nil || strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("officer %d: id is required", i)
		}
		if o.Specialization == "" {
			return fmt.Errorf("officer %s: specialization is required", o.ID)
		}
		if o.Capacity.MaxCaseload < 0 || o.Capacity.ExternalLoad < 0 {
			return fmt.Errorf("officer %s: capacity must not be negative", o.ID)
		}
		if o.Capacity.PriorityWeight == 0 {
			o.Capacity.PriorityWeight = 1
		}
		if o.Roster == nil {
			o.Roster = []string{}
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = now
		}
		if seen["o:"+o.ID] {
			return fmt.Errorf("officer %s: duplicate id", o.ID)
		}
		seen["o:"+o.ID] = true
	}

	for i, c := range f.Customers {
		if c == nil || strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("customer %d: id is required", i)
		}
		if c.ProductType == "" {
			return fmt.Errorf("customer %s: product_type is required", c.ID)
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		if seen["c:"+c.ID] {
			return fmt.Errorf("customer %s: duplicate id", c.ID)
		}
		seen["c:"+c.ID] = true
	}
	return nil
}

// Seed upserts every officer and customer of f into the App's store.
// Customers go first so that history rows can reference them.
func (a *App) Seed(ctx context.Context, f *Fixture) error {
	for _, c := range f.Customers {
		if err := a.Customers.Save(ctx, c); err != nil {
			return fmt.Errorf("failed to save customer %s: %w", c.ID, err)
		}
	}
	for _, o := range f.Officers {
		if err := a.Officers.Save(ctx, o); err != nil {
			return fmt.Errorf("failed to save officer %s: %w", o.ID, err)
		}
	}

	a.Logger.Info(ctx, "Fixture loaded", map[string]interface{}{
		"officers":  len(f.Officers),
		"customers": len(f.Customers),
	})
	return nil
}
