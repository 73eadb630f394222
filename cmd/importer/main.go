package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/valyala/fasthttp"

	"github.com/samirrijal/fieldmap/internal/adapters/geoapi"
	natsadapter "github.com/samirrijal/fieldmap/internal/adapters/nats"
	"github.com/samirrijal/fieldmap/internal/adapters/postgres"
	"github.com/samirrijal/fieldmap/internal/adapters/valkey"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/config"
	"github.com/samirrijal/fieldmap/internal/pkg/logging"
)

// Manifest lists the GeoJSON FeatureCollections to import.
type Manifest struct {
	Source      string            `json:"source"`
	Collections []CollectionEntry `json:"collections"`
}

// CollectionEntry is one FeatureCollection, read from Path or fetched from URL.
type CollectionEntry struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

func main() {
	cfg, err := config.Load("fieldmap-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	var repo ports.FieldRepository
	switch cfg.Fields.Backend {
	case "remote":
		repo = geoapi.New(cfg.GeoAPI.BaseURL, cfg.GeoAPI.Token, cfg.GeoAPI.Timeout)
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		repo = postgres.NewFieldRepo(db)
	}

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, imported fields will not be announced", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	fields := usecases.NewFieldService(repo, cacheSvc, publisher)

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	slog.Info("importing fields", "collections", len(manifest.Collections), "source", manifest.Source)

	// Optional CLI arg: comma-separated collection names
	nameFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			nameFilter[strings.TrimSpace(s)] = true
		}
	}

	client := &fasthttp.Client{
		Name:         "fieldmap-importer",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent collections

	for _, entry := range manifest.Collections {
		if len(nameFilter) > 0 && !nameFilter[entry.Name] {
			continue
		}

		wg.Add(1)
		go func(e CollectionEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := importCollection(ctx, fields, client, e); err != nil {
				slog.Error("import failed", "collection", e.Name, "error", err)
			}
		}(entry)
	}

	wg.Wait()
	slog.Info("import complete")
}

func importCollection(ctx context.Context, fields *usecases.FieldService, client *fasthttp.Client, e CollectionEntry) error {
	body, err := loadCollection(client, e)
	if err != nil {
		return err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return fmt.Errorf("parse feature collection: %w", err)
	}

	inputs, skipped := fieldInputs(e.Name, fc)
	for _, err := range skipped {
		slog.Warn("feature skipped", "collection", e.Name, "error", err)
	}

	created := 0
	for _, in := range inputs {
		f, err := fields.Create(ctx, in)
		if err != nil {
			slog.Warn("field rejected", "collection", e.Name, "name", in.Name, "error", err)
			continue
		}
		created++
		slog.Debug("field imported", "collection", e.Name, "field_id", f.ID, "area_ha", f.AreaHectares)
	}

	slog.Info("collection imported", "collection", e.Name, "created", created, "skipped", len(skipped), "rejected", len(inputs)-created)
	return nil
}

func loadCollection(client *fasthttp.Client, e CollectionEntry) ([]byte, error) {
	switch {
	case e.Path != "":
		data, err := os.ReadFile(e.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Path, err)
		}
		return data, nil
	case e.URL != "":
		slog.Info("downloading collection", "collection", e.Name, "url", e.URL)
		status, body, err := client.GetTimeout(nil, e.URL, 120*time.Second)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", e.URL, err)
		}
		if status != fasthttp.StatusOK {
			return nil, fmt.Errorf("HTTP %d for %s", status, e.URL)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("collection %q has neither path nor url", e.Name)
	}
}

// fieldInputs turns the Polygon features of fc into create inputs. Features
// are named by their "name" property, falling back to the collection name
// and position. Non-polygon features are reported and skipped.
func fieldInputs(collection string, fc *geojson.FeatureCollection) ([]domain.CreateFieldInput, []error) {
	var (
		inputs  []domain.CreateFieldInput
		skipped []error
	)
	for i, f := range fc.Features {
		poly, err := domain.PolygonFromFeature(f)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("feature %d: %w", i, err))
			continue
		}

		name, _ := f.PropertyString("name")
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("%s %d", collection, i+1)
		}
		status, _ := f.PropertyString("field_status")

		inputs = append(inputs, domain.CreateFieldInput{
			Name:     name,
			Status:   domain.FieldStatus(status),
			Geometry: poly,
		})
	}
	return inputs, skipped
}
