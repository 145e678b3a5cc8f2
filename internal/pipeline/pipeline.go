// Package pipeline wires the stages into a single-pass batch run:
// watermark read, extract, normalize, dedupe, metadata fetch, enrich, load,
// watermark advance, manifest publish.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"retl/internal/dedupe"
	"retl/internal/diag"
	"retl/internal/enrich"
	"retl/internal/extract"
	"retl/internal/load"
	"retl/internal/manifest"
	"retl/internal/metrics"
	"retl/internal/model"
	"retl/internal/normalize"
	"retl/internal/watermark"
)

// MetadataFetcher is the slice of metadata.Fetcher the pipeline needs.
type MetadataFetcher interface {
	FetchAll(ctx context.Context, dc *diag.Collector) (map[string]model.Metadata, error)
}

// Loader is the slice of load.Loader the pipeline needs.
type Loader interface {
	LoadAll(ctx context.Context, products []model.Product, customers []model.Customer, sales []model.Sale) (load.Counts, error)
}

// Sources names the three input files.
type Sources struct {
	ProductsFile  string
	SalesFile     string
	CustomersFile string
}

// Pipeline holds the collaborators of one configured pipeline. Build one
// and call Run per batch; stages share nothing across runs except the
// watermark store and destination tables.
type Pipeline struct {
	log       *zap.SugaredLogger
	sources   Sources
	fetcher   MetadataFetcher
	loader    Loader
	wm        watermark.Store
	publisher manifest.Publisher // optional
	archive   *diag.Archive      // optional
	reg       *metrics.Registry  // optional
	opts      enrich.Options
}

// Option configures optional collaborators.
type Option func(*Pipeline)

func WithPublisher(p manifest.Publisher) Option { return func(pl *Pipeline) { pl.publisher = p } }
func WithArchive(a *diag.Archive) Option        { return func(pl *Pipeline) { pl.archive = a } }
func WithMetrics(r *metrics.Registry) Option    { return func(pl *Pipeline) { pl.reg = r } }

func New(log *zap.SugaredLogger, sources Sources, fetcher MetadataFetcher, loader Loader, wm watermark.Store, opts enrich.Options, options ...Option) *Pipeline {
	p := &Pipeline{
		log:     log,
		sources: sources,
		fetcher: fetcher,
		loader:  loader,
		wm:      wm,
		opts:    opts,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Report summarizes one run.
type Report struct {
	RunID           string
	Incremental     bool
	NoOp            bool
	WatermarkBefore time.Time
	WatermarkAfter  time.Time
	RowsLoaded      load.Counts
	// MonthlyRevenue is total_sales_value by purchase month and category,
	// over the rows this run loaded.
	MonthlyRevenue  map[string]map[string]float64
	IssueCounts     map[string]int
	Duration        time.Duration
}

// Run executes one batch. incremental filters sales to rows newer than the
// stored watermark; a full run processes everything and still sets the
// watermark to the newest date loaded. The watermark only moves after the
// loader returns success, so a failed load leaves state resumable.
func (p *Pipeline) Run(ctx context.Context, incremental bool) (Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With("run_id", runID)
	dc := diag.NewCollector(log)
	rep := Report{RunID: runID, Incremental: incremental}

	finish := func(rep Report, err error) (Report, error) {
		rep.IssueCounts = dc.CountByKind()
		rep.Duration = time.Since(start)
		if p.reg != nil {
			p.reg.RunDurationSec.Observe(rep.Duration.Seconds())
			for k, n := range rep.IssueCounts {
				stage, kind, _ := strings.Cut(k, "/")
				p.reg.QualityIssues.WithLabelValues(stage, kind).Add(float64(n))
				if stage == string(diag.StageFetch) && kind == "page_failed" {
					p.reg.PagesSkipped.Add(float64(n))
				}
			}
		}
		if p.archive != nil {
			if aerr := p.archive.Append(runID, dc.Events()); aerr != nil {
				log.Errorw("archive diagnostics", "err", aerr)
			}
		}
		return rep, err
	}

	// Watermark is consulted before extraction so a failed run later on
	// cannot have moved it.
	wmBefore, haveWM, err := p.wm.Read(ctx)
	if err != nil {
		return finish(rep, fmt.Errorf("stage watermark: %w", err))
	}
	rep.WatermarkBefore = wmBefore
	rep.WatermarkAfter = wmBefore

	rawProducts, err := extract.ReadFile(p.sources.ProductsFile)
	if err != nil {
		return finish(rep, fmt.Errorf("stage extract: %w", err))
	}
	rawSales, err := extract.ReadFile(p.sources.SalesFile)
	if err != nil {
		return finish(rep, fmt.Errorf("stage extract: %w", err))
	}
	rawCustomers, err := extract.ReadFile(p.sources.CustomersFile)
	if err != nil {
		return finish(rep, fmt.Errorf("stage extract: %w", err))
	}
	p.countExtracted(len(rawProducts), len(rawSales), len(rawCustomers))
	log.Infow("extracted",
		"products", len(rawProducts), "sales", len(rawSales), "customers", len(rawCustomers))

	products := normalize.Products(rawProducts, dc)
	customers := dedupe.Customers(normalize.Customers(rawCustomers, dc), dc)
	history := normalize.Sales(rawSales, dc)

	// The watermark bounds which rows get loaded; enrichment still sees the
	// full history so popularity and purchase categories stay all-time values.
	sales := history
	if incremental && haveWM {
		sales = filterAfter(history, wmBefore)
		log.Infow("incremental window", "watermark", wmBefore.Format("2006-01-02"),
			"rows_in", len(history), "rows_qualifying", len(sales))
		if len(sales) == 0 {
			log.Infow("no new rows past watermark, run is a no-op")
			rep.NoOp = true
			return finish(rep, nil)
		}
	}

	meta, err := p.fetcher.FetchAll(ctx, dc)
	if err != nil {
		return finish(rep, fmt.Errorf("stage fetch: %w", err))
	}
	log.Infow("fetched metadata", "records", len(meta))

	products = enrich.MergeMetadata(products, meta, dc)
	products = enrich.ScorePopularity(products, history)
	sales = enrich.TransformSales(sales, products, customers, p.opts, dc)
	customers = enrich.CategorizeCustomers(customers, history, p.opts)

	counts, err := p.loader.LoadAll(ctx, products, customers, sales)
	if err != nil {
		// Watermark untouched: the next run replays this window and the
		// upsert keys keep the replay idempotent.
		dc.Record(diag.StageLoad, "load_failed", "", err.Error())
		return finish(rep, fmt.Errorf("stage load: %w", err))
	}
	rep.RowsLoaded = counts
	rep.MonthlyRevenue = enrich.MonthlyRevenue(sales, products)
	p.countLoaded(counts)
	log.Infow("loaded", "products", counts.Products, "customers", counts.Customers,
		"sales", counts.Sales, "revenue_months", len(rep.MonthlyRevenue))

	if newWM, ok := maxDate(sales); ok && newWM.After(wmBefore) {
		if err := p.wm.Advance(ctx, newWM); err != nil {
			return finish(rep, fmt.Errorf("stage watermark: advance: %w", err))
		}
		rep.WatermarkAfter = newWM
		if p.reg != nil {
			p.reg.WatermarkUnix.Set(float64(newWM.Unix()))
		}
		log.Infow("watermark advanced", "from", wmBefore.Format("2006-01-02"), "to", newWM.Format("2006-01-02"))
	}

	if p.publisher != nil {
		m := manifest.RunManifest{
			RunID:       runID,
			Watermark:   rep.WatermarkAfter.Format("2006-01-02"),
			RowsLoaded:  counts,
			IssueCounts: dc.CountByKind(),
		}
		if err := p.publisher.PublishLatest(m); err != nil {
			// Publishing is advisory; the load already committed.
			log.Errorw("publish manifest", "err", err)
		}
	}

	return finish(rep, nil)
}

func (p *Pipeline) countExtracted(products, sales, customers int) {
	if p.reg == nil {
		return
	}
	p.reg.RowsExtracted.WithLabelValues("products").Add(float64(products))
	p.reg.RowsExtracted.WithLabelValues("sales").Add(float64(sales))
	p.reg.RowsExtracted.WithLabelValues("customers").Add(float64(customers))
}

func (p *Pipeline) countLoaded(c load.Counts) {
	if p.reg == nil {
		return
	}
	p.reg.RowsLoaded.WithLabelValues("products").Add(float64(c.Products))
	p.reg.RowsLoaded.WithLabelValues("customers").Add(float64(c.Customers))
	p.reg.RowsLoaded.WithLabelValues("sales").Add(float64(c.Sales))
}

func filterAfter(sales []model.Sale, wm time.Time) []model.Sale {
	out := sales[:0:0]
	for _, s := range sales {
		if s.TransactionDate.After(wm) {
			out = append(out, s)
		}
	}
	return out
}

func maxDate(sales []model.Sale) (time.Time, bool) {
	var max time.Time
	for _, s := range sales {
		if s.TransactionDate.After(max) {
			max = s.TransactionDate
		}
	}
	return max, !max.IsZero()
}
