package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/persistence"
	"github.com/territory-studio/engine/pkg/config"
	"github.com/territory-studio/engine/pkg/logger"
)

func main() {
	importPath := flag.String("import", "", "import a territory snapshot (any legacy layout) into the configured store")
	renumber := flag.Bool("renumber", false, "with -import: renumber regions by descending area")
	exportPath := flag.String("export", "", "write the stored document to a file")
	flag.Parse()

	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	backend, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open document store", zap.Error(err))
	}
	defer backend.Close()

	if backend.DB != nil {
		if err := runMigrations(backend.DB); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stdout, "migrations completed")
	}

	if *importPath != "" {
		if err := importSnapshot(ctx, backend.Store, *importPath, *renumber); err != nil {
			log.Fatal("import failed", zap.String("path", *importPath), zap.Error(err))
		}
		fmt.Fprintf(os.Stdout, "imported %s\n", *importPath)
	}

	if *exportPath != "" {
		if err := exportDocument(ctx, backend.Store, *exportPath); err != nil {
			log.Fatal("export failed", zap.String("path", *exportPath), zap.Error(err))
		}
		fmt.Fprintf(os.Stdout, "exported %s\n", *exportPath)
	}
}

func importSnapshot(ctx context.Context, store persistence.Store, path string, renumber bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := persistence.ImportSnapshot(raw)
	if err != nil {
		return err
	}
	if renumber {
		persistence.RenumberByArea(doc.ExtractedRegions)
	}
	logger.L().Info("snapshot parsed",
		zap.Int("regions", len(doc.ExtractedRegions)),
		zap.Int("territories", len(doc.TerritoryData.Territories)),
		zap.Int("groups", len(doc.TerritoryData.Groups)),
	)
	return store.SaveAll(ctx, doc)
}

func exportDocument(ctx context.Context, store persistence.Store, path string) error {
	doc, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
