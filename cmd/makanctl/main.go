// Package main implements the makanctl CLI for indexing and querying the
// restaurant retrieval system.
package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/makanlah/makanrag/internal/config"
	"github.com/makanlah/makanrag/internal/restaurant"
	"github.com/makanlah/makanrag/internal/services"
	"github.com/makanlah/makanrag/internal/vision"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configPath is the YAML config file to load.
	configPath string
	// verbose enables debug logging.
	verbose bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "makanctl",
	Short: "CLI for the makanrag restaurant retrieval system",
	Long: `makanctl indexes Kuala Lumpur restaurants into the vector store and
queries them with natural-language and food-photo questions.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/makanrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(visionCmd)
}

// indexCmd collects restaurants and indexes them.
var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Index restaurants into the vector store",
	Long: `Index restaurants into the vector store.

Without arguments, restaurants are collected live from the Foursquare
Places API across the configured Kuala Lumpur areas. With a file argument,
restaurants are read from a JSON array instead.

Examples:
  # Collect from Foursquare and index
  makanctl index

  # Index from a prepared JSON file
  makanctl index restaurants.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

// queryCmd retrieves restaurants for a text query.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve restaurants matching a query",
	Long: `Retrieve the restaurants most relevant to a natural-language query.

Examples:
  # Default result count
  makanctl query "best nasi lemak for breakfast"

  # More results
  makanctl query --top-k 5 "late night mamak"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// visionCmd answers a question about food photos.
var visionCmd = &cobra.Command{
	Use:   "vision <image>...",
	Short: "Answer a food question grounded on one or more photos",
	Long: `Analyze food photos, retrieve matching restaurants, and answer the
question in --message.

Examples:
  makanctl vision --message "where can I eat this?" photo.jpg
  makanctl vision --message "what dish is this?" front.jpg side.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVision,
}

var (
	indexTopK     int
	visionMessage string
)

func init() {
	queryCmd.Flags().IntVar(&indexTopK, "top-k", 0, "number of restaurants to return (default from config)")
	visionCmd.Flags().StringVar(&visionMessage, "message", "What food is this and where can I get it?", "question to answer about the photos")
}

// setup loads config, builds the logger, and wires the service registry.
func setup() (services.Registry, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	var logger *zap.Logger
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	reg, err := services.Build(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return reg, logger, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	reg, logger, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	var restaurants []restaurant.Metadata
	if len(args) == 1 {
		restaurants, err = loadRestaurantsFile(args[0])
		if err != nil {
			return err
		}
	} else {
		if reg.Collector() == nil {
			return fmt.Errorf("no Foursquare API key configured; pass a restaurants JSON file instead")
		}
		restaurants = reg.Collector().CollectTopRestaurants(ctx)
	}

	fmt.Printf("Indexing %d restaurants...\n", len(restaurants))
	if err := reg.RAG().IndexRestaurants(ctx, restaurants); err != nil {
		return err
	}
	fmt.Println("Indexing complete.")
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	reg, logger, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()
	defer logger.Sync() //nolint:errcheck

	results := reg.RAG().RetrieveRelevantRestaurants(cmd.Context(), args[0], indexTopK)
	if len(results) == 0 {
		fmt.Println("No matching restaurants found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (score: %.3f)\n", i+1, r.RestaurantName, r.RelevanceScore)
		content := r.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Printf("   %s\n", content)
	}
	return nil
}

func runVision(cmd *cobra.Command, args []string) error {
	reg, logger, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()
	defer logger.Sync() //nolint:errcheck

	images := make([]vision.Image, 0, len(args))
	for _, path := range args {
		img, err := loadImage(path)
		if err != nil {
			return err
		}
		images = append(images, img)
	}

	result, err := reg.VisionRAG().ProcessVisionWithRAG(cmd.Context(), images, visionMessage)
	if err != nil {
		return err
	}

	if len(result.VisionAnalysis.FoodItems) > 0 {
		fmt.Printf("Detected: %s\n", strings.Join(result.VisionAnalysis.FoodItems, ", "))
	}
	if result.VisionAnalysis.Cuisine != "" {
		fmt.Printf("Cuisine: %s\n", result.VisionAnalysis.Cuisine)
	}
	fmt.Println()
	fmt.Println(result.Response)
	return nil
}

// loadRestaurantsFile reads a JSON array of restaurant metadata.
func loadRestaurantsFile(path string) ([]restaurant.Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var restaurants []restaurant.Metadata
	if err := json.Unmarshal(content, &restaurants); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return restaurants, nil
}

// loadImage reads an image file and infers its MIME type from the extension.
func loadImage(path string) (vision.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vision.Image{}, fmt.Errorf("reading %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(mimeType, "image/") {
		return vision.Image{}, fmt.Errorf("%s: unsupported image type %q", path, mimeType)
	}

	return vision.Image{Data: data, MimeType: mimeType}, nil
}
