package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	"storefront/internal/product"

	"go.uber.org/zap"
)

//go:embed catalog.json
var catalogJSON []byte

func main() {
	reset := flag.Bool("reset", false, "delete the existing catalog before seeding")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	catalog, err := loadCatalog(catalogJSON)
	if err != nil {
		logger.L().Fatal("invalid sample catalog", zap.Error(err))
	}

	svc := product.NewService(product.NewRepository(database))
	counts, err := seed(operatorContext(), svc, catalog, *reset)
	if err != nil {
		logger.L().Fatal("seeding failed", zap.Error(err))
	}

	for category, n := range counts {
		logger.L().Info("seeded category", zap.String("category", string(category)), zap.Int("products", n))
	}
}

func loadCatalog(raw []byte) ([]product.NewProductInput, error) {
	var catalog []product.NewProductInput
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return catalog, nil
}

// operatorContext runs the seed with the operator role so product writes
// pass the service's authorization check.
func operatorContext() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{CallerID: "seed", Role: auth.RoleAdmin})
}

// seed creates every catalog entry through the product service. A non-empty
// catalog is left alone unless reset is set.
func seed(ctx context.Context, svc product.Service, catalog []product.NewProductInput, reset bool) (map[product.Category]int, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "seed"))

	existing, err := svc.List(ctx, product.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if len(existing) > 0 {
		if !reset {
			log.Info("catalog already populated, skipping", zap.Int("products", len(existing)))
			return map[product.Category]int{}, nil
		}
		for _, p := range existing {
			if err := svc.Delete(ctx, p.ID); err != nil {
				return nil, fmt.Errorf("delete %s: %w", p.ID, err)
			}
		}
		log.Info("existing catalog removed", zap.Int("products", len(existing)))
	}

	counts := make(map[product.Category]int)
	for _, in := range catalog {
		p, err := svc.Create(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", in.Name, err)
		}
		counts[p.Category]++
	}

	log.Info("sample catalog added", zap.Int("products", len(catalog)))
	return counts, nil
}
