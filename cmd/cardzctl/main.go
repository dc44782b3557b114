// cardzctl is the operator CLI: price a card from the terminal, inspect how a
// search query is parsed, seed the local sales catalog and verify CMV wiring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/cache"
	"github.com/maxinvesting/CardzCheck-sub003/internal/config"
	"github.com/maxinvesting/CardzCheck-sub003/internal/database"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cardzctl",
		Short:         "Sports card market tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(compsCmd(), parseCmd(), importCatalogCmd(), wiringCheckCmd(), snapshotCmd())
	return cmd
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return cfg, db, nil
}

func newCompsService(cfg *config.Config, db *gorm.DB) *services.CompsService {
	var source services.ListingSource
	if cfg.ListingSource == "catalog" {
		source = services.NewCatalogAPISource(cfg.CatalogAPIURL, cfg.CatalogAPIKey, cfg.CatalogDailyLimit)
	} else {
		source = services.NewEbaySoldSource(cfg.EbaySoldURL, cfg.EbayRatePerSec)
	}
	return services.NewCompsService(db, source, services.NewCatalogDBSource(db), cache.NewMemoryStore(100, cfg.GradeCmvCacheTTL), services.CompsConfig{
		Window:   cfg.CompWindow,
		CacheTTL: cfg.GradeCmvCacheTTL,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func compsCmd() *cobra.Command {
	var (
		req        models.CardRequest
		query      string
		outputJSON bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "comps",
		Short: "Price a card from recent sold listings",
		Example: `  cardzctl comps --player "Victor Wembanyama" --year 2023 --set Prizm --grader PSA --grade 10
  cardzctl comps --player wemby --set prizm --json
  cardzctl comps --query "2023 prizm wemby silver psa 10"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if query != "" {
				parsed, err := services.CardRequestFromText(query)
				if err != nil {
					return err
				}
				req = parsed
			} else if strings.TrimSpace(req.PlayerName) == "" {
				return fmt.Errorf("either --player or --query is required")
			}
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(timeout)
			defer cancel()

			result, err := newCompsService(cfg, db).Search(ctx, "", req)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Query:   %s\n", result.Query)
			fmt.Fprintf(out, "Bucket:  %s (source %s", result.GradeBucket, result.Source)
			if result.Fallback {
				fmt.Fprint(out, ", stored sales")
			}
			fmt.Fprintln(out, ")")
			if result.GradeCmv.Price == nil {
				fmt.Fprintln(out, "CMV:     no comparable sales")
			} else {
				fmt.Fprintf(out, "CMV:     $%.2f (%s of %d)\n", *result.GradeCmv.Price, result.GradeCmv.Method, result.GradeCmv.N)
			}
			fmt.Fprintf(out, "Listings: %d exact, %d likely, %d close, %d hidden\n",
				len(result.Listings.Exact), len(result.Listings.Likely), len(result.Listings.Close), result.Listings.Hidden)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Free-text search, used instead of the card flags")
	cmd.Flags().StringVar(&req.PlayerName, "player", "", "Player name")
	cmd.Flags().StringVar(&req.Year, "year", "", "Release year")
	cmd.Flags().StringVar(&req.SetName, "set", "", "Set or product name")
	cmd.Flags().StringVar(&req.Parallel, "parallel", "", "Parallel or color")
	cmd.Flags().StringVar(&req.CardNumber, "number", "", "Card number")
	cmd.Flags().StringVar(&req.Grader, "grader", "", "Grading company (PSA, BGS, SGC, CGC)")
	cmd.Flags().StringVar(&req.Grade, "grade", "", "Grade, e.g. 10 or 9.5")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the full result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall timeout")
	return cmd
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <query>",
		Short: "Show how a free-text search is classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), services.ParseQuery(strings.Join(args, " ")))
		},
	}
}

// catalogImport is one sale in an import file.
type catalogImport struct {
	PlayerName string  `json:"player_name"`
	SetName    string  `json:"set_name"`
	Year       string  `json:"year"`
	Parallel   string  `json:"parallel"`
	CardNumber string  `json:"card_number"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	SoldAt     string  `json:"sold_at"`
	URL        string  `json:"url"`
	ImageURL   string  `json:"image_url"`
}

// groupImports validates an import file and groups sales by card so each group can
// be saved with its card identity. Rejected entries are reported, not fatal.
func groupImports(entries []catalogImport) (map[models.CardRequest][]models.Listing, []string) {
	groups := make(map[models.CardRequest][]models.Listing)
	var rejected []string

	for i, e := range entries {
		if strings.TrimSpace(e.PlayerName) == "" || e.URL == "" || e.Title == "" || e.Price <= 0 {
			rejected = append(rejected, fmt.Sprintf("entry %d: player_name, title, url and a positive price are required", i))
			continue
		}
		listing := models.Listing{
			Title:      e.Title,
			Price:      e.Price,
			URL:        e.URL,
			ImageURL:   e.ImageURL,
			SetName:    strings.TrimSpace(e.SetName),
			Year:       services.NormalizeYear(e.Year),
			Variant:    strings.TrimSpace(e.Parallel),
			CardNumber: services.NormalizeCardNumber(e.CardNumber),
			Source:     "import",
		}
		if e.SoldAt != "" {
			t, err := time.Parse("2006-01-02", e.SoldAt)
			if err != nil {
				t, err = time.Parse(time.RFC3339, e.SoldAt)
			}
			if err != nil {
				rejected = append(rejected, fmt.Sprintf("entry %d: bad sold_at %q", i, e.SoldAt))
				continue
			}
			listing.SoldAt = &t
		}
		key := models.CardRequest{
			PlayerName: strings.TrimSpace(e.PlayerName),
			Year:       services.NormalizeYear(e.Year),
			SetName:    strings.TrimSpace(e.SetName),
			Parallel:   strings.TrimSpace(e.Parallel),
			CardNumber: services.NormalizeCardNumber(e.CardNumber),
		}
		groups[key] = append(groups[key], listing)
	}
	return groups, rejected
}

func importCatalogCmd() *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "import-catalog <file.json>",
		Short: "Seed the local sales catalog from a JSON array of sales",
		Long: `Loads sold listings into the catalog table that backs card search and serves
as the fallback when the live listing source is down. Runs as a dry run unless
--execute is given. Rows are upserted by URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var entries []catalogImport
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			groups, rejected := groupImports(entries)
			for _, r := range rejected {
				fmt.Fprintln(out, "SKIP", r)
			}
			total := 0
			for _, listings := range groups {
				total += len(listings)
			}
			fmt.Fprintf(out, "%d sale(s) across %d card(s), %d rejected\n", total, len(groups), len(rejected))
			if !execute {
				fmt.Fprintln(out, "Dry run: re-run with --execute to write")
				return nil
			}

			_, db, err := openDB()
			if err != nil {
				return err
			}
			catalog := services.NewCatalogDBSource(db)
			saved := 0
			for req, listings := range groups {
				n, err := catalog.SaveListings(cmd.Context(), req, listings)
				if err != nil {
					return err
				}
				saved += n
			}
			fmt.Fprintf(out, "Saved %d row(s)\n", saved)
			return nil
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Write rows instead of a dry run")
	return cmd
}

func wiringCheckCmd() *cobra.Command {
	var (
		userID  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wiring-check <item-id>",
		Short: "Drive one collection item through comps, persist and both read paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(timeout)
			defer cancel()

			cmv := services.NewCmvService(db, newCompsService(cfg, db))
			report := services.RunCmvWiringCheck(ctx, cmv.WiringDeps(userID), uint(id))
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("wiring check failed for item %d", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "Owner of the item")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "Overall timeout")
	return cmd
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Record today's portfolio snapshot for every user now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			n, err := services.NewSnapshotService(db, cfg.SnapshotHour).TakeSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d snapshot(s)\n", n)
			return nil
		},
	}
}
