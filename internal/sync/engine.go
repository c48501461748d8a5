package sync

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"time"

	"storebridge/internal/logger"
	"storebridge/internal/models"
	"storebridge/internal/services/erp"
	"storebridge/internal/store"
)

// Client is the slice of the ERP API the engine consumes.
type Client interface {
	FetchCategories(ctx context.Context, page, pageSize int) ([]erp.RawCategory, error)
	FetchCategoryByID(ctx context.Context, externalID int64) (*erp.RawCategory, error)
	FetchProducts(ctx context.Context, page, pageSize int) ([]erp.RawProduct, error)
	FetchProductByID(ctx context.Context, externalID int64) (*erp.RawProduct, error)
	FetchProductVariants(ctx context.Context, externalID int64) ([]erp.RawVariant, error)
	FetchProductStock(ctx context.Context, externalID int64) (*erp.StockResponse, error)
	FetchProductCategories(ctx context.Context, externalID int64) ([]erp.RawCategory, error)
}

// Engine reconciles the ERP's object graph into the local cache. Full
// syncs run the five stages in dependency order; the single-entity
// methods back the webhook dispatcher. All operations are idempotent:
// replaying any of them against unchanged upstream data is a no-op
// apart from bookkeeping timestamps.
type Engine struct {
	client      Client
	store       *store.Store
	transformer *erp.Transformer
	logger      *logger.Logger
	pageSize    int
}

func NewEngine(client Client, st *store.Store, transformer *erp.Transformer, log *logger.Logger, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{
		client:      client,
		store:       st,
		transformer: transformer,
		logger:      log,
		pageSize:    pageSize,
	}
}

// variantSuffix matches SKUs following the <root>_C<n> variant naming
// convention. The root is the parent product's SKU.
var variantSuffix = regexp.MustCompile(`^(.+)_C\d+$`)

// RunFullSync executes the five-stage pipeline. Item-level failures are
// logged and counted on the run record, never escalated; the returned
// error is reserved for the store being unreachable.
func (e *Engine) RunFullSync(ctx context.Context, trigger string) (*models.SyncRun, error) {
	run := &models.SyncRun{
		Trigger:   trigger,
		Status:    models.SyncRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateSyncRun(run); err != nil {
		return nil, err
	}

	log := e.logger.WithFields(map[string]interface{}{"run_id": run.ID, "trigger": trigger})
	log.Info("full sync started")

	run.Categories, run.Errors = e.syncCategories(ctx, log)

	products, variants, errs := e.syncProducts(ctx, log)
	run.Products = products
	run.Variants = variants
	run.Errors += errs

	run.Images, errs = e.syncImages(ctx, log)
	run.Errors += errs

	run.Stock, errs = e.syncStock(ctx, log)
	run.Errors += errs

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = models.SyncRunCompleted
	if err := e.store.UpdateSyncRun(run); err != nil {
		log.Error("failed to finalize sync run: %v", err)
	}

	log.Info("full sync finished: %d categories, %d products, %d variants, %d images, %d stock rows, %d errors",
		run.Categories, run.Products, run.Variants, run.Images, run.Stock, run.Errors)
	return run, nil
}

// --- Stage 1: categories ---

func (e *Engine) syncCategories(ctx context.Context, log *logger.Logger) (int, int) {
	log.Info("starting category sync")
	synced, errs := 0, 0

	for page := 0; ; page++ {
		rawPage, err := e.client.FetchCategories(ctx, page, e.pageSize)
		if err != nil {
			log.Error("failed to fetch categories page %d: %v", page, err)
			errs++
			break
		}
		if len(rawPage) == 0 {
			break
		}

		for i := range rawPage {
			cat := e.transformer.TransformCategory(&rawPage[i])
			if cat.ExternalID == 0 {
				log.Warn("skipping category with no external id")
				continue
			}
			if err := e.store.UpsertCategory(cat); err != nil {
				log.Error("failed to upsert category %d: %v", cat.ExternalID, err)
				errs++
				continue
			}
			synced++
		}

		if len(rawPage) < e.pageSize {
			break
		}
	}

	errs += e.resolveCategoryParents(log)
	log.Info("category sync finished: %d synced", synced)
	return synced, errs
}

// resolveCategoryParents maps parent external ids to local ids once the
// whole tree is present. A parent missing upstream stays nil.
func (e *Engine) resolveCategoryParents(log *logger.Logger) int {
	categories, err := e.store.Categories()
	if err != nil {
		log.Error("failed to load categories for parent resolution: %v", err)
		return 1
	}
	idMap := make(map[int64]uint, len(categories))
	for _, c := range categories {
		idMap[c.ExternalID] = c.ID
	}

	errs := 0
	for _, c := range categories {
		var parentID *uint
		if c.ParentExternalID != nil {
			if local, ok := idMap[*c.ParentExternalID]; ok {
				parentID = &local
			} else {
				log.Warn("parent category %d not found locally for category %d", *c.ParentExternalID, c.ExternalID)
			}
		}
		if err := e.store.SetCategoryParent(c.ID, parentID); err != nil {
			log.Error("failed to set parent for category %d: %v", c.ExternalID, err)
			errs++
		}
	}
	return errs
}

// --- Stage 2: products and variants ---

func (e *Engine) syncProducts(ctx context.Context, log *logger.Logger) (int, int, int) {
	log.Info("starting product sync")

	catMap, err := e.store.CategoryIDMap()
	if err != nil {
		log.Error("failed to build category id map: %v", err)
		return 0, 0, 1
	}

	var all []erp.RawProduct
	errs := 0
	for page := 0; ; page++ {
		rawPage, err := e.client.FetchProducts(ctx, page, e.pageSize)
		if err != nil {
			log.Error("failed to fetch products page %d: %v", page, err)
			errs++
			break
		}
		if len(rawPage) == 0 {
			break
		}
		all = append(all, rawPage...)
		if len(rawPage) < e.pageSize {
			break
		}
	}
	log.Info("fetched %d products", len(all))

	parents, grouped := groupByVariantSuffix(all)

	syncedProducts, syncedVariants := 0, 0
	for i := range parents {
		raw := &parents[i]
		product := e.transformer.TransformProduct(raw)
		if product.ExternalID == 0 {
			log.Warn("skipping product with no external id (ref %q)", raw.Ref)
			continue
		}

		if err := e.store.UpsertProduct(product); err != nil {
			log.Error("failed to upsert product %d: %v", product.ExternalID, err)
			errs++
			continue
		}
		syncedProducts++

		if err := e.relinkCategories(ctx, product, catMap, log); err != nil {
			errs++
		}

		count, verrs := e.replaceVariants(ctx, raw, product, grouped[raw.Ref], log)
		syncedVariants += count
		errs += verrs
	}

	log.Info("product sync finished: %d products, %d variants", syncedProducts, syncedVariants)
	return syncedProducts, syncedVariants, errs
}

// groupByVariantSuffix splits a product batch into parents and, per
// parent SKU, the products that are variants of it by naming
// convention. A suffix-matched product whose root is absent from the
// batch is kept as a plain parent.
func groupByVariantSuffix(all []erp.RawProduct) ([]erp.RawProduct, map[string][]erp.RawProduct) {
	byRef := make(map[string]bool, len(all))
	for i := range all {
		if all[i].Ref != "" {
			byRef[all[i].Ref] = true
		}
	}

	var parents []erp.RawProduct
	grouped := make(map[string][]erp.RawProduct)
	for i := range all {
		raw := all[i]
		if m := variantSuffix.FindStringSubmatch(raw.Ref); m != nil && byRef[m[1]] {
			grouped[m[1]] = append(grouped[m[1]], raw)
			continue
		}
		parents = append(parents, raw)
	}
	return parents, grouped
}

// relinkCategories rebuilds one product's category links from the live
// upstream membership list. Unresolvable category ids are skipped.
func (e *Engine) relinkCategories(ctx context.Context, product *models.Product, catMap map[int64]uint, log *logger.Logger) error {
	rawCats, err := e.client.FetchProductCategories(ctx, product.ExternalID)
	if err != nil {
		if errors.Is(err, erp.ErrNotFound) {
			rawCats = nil
		} else {
			log.Error("failed to fetch categories for product %d: %v", product.ExternalID, err)
			return err
		}
	}

	var categoryIDs []uint
	for i := range rawCats {
		cat := e.transformer.TransformCategory(&rawCats[i])
		localID, ok := catMap[cat.ExternalID]
		if !ok {
			log.Warn("category %d not found locally for product %d, skipping link", cat.ExternalID, product.ExternalID)
			continue
		}
		categoryIDs = append(categoryIDs, localID)
	}

	if err := e.store.ReplaceProductCategoryLinks(product.ID, categoryIDs); err != nil {
		log.Error("failed to rebuild category links for product %d: %v", product.ExternalID, err)
		return err
	}
	return nil
}

// replaceVariants performs the variant full-replace for one parent.
// Variants come from the batch's naming-convention matches when any
// exist, otherwise from the ERP's variants endpoint.
func (e *Engine) replaceVariants(ctx context.Context, rawParent *erp.RawProduct, parent *models.Product, matched []erp.RawProduct, log *logger.Logger) (int, int) {
	if len(matched) > 0 {
		return e.replaceInferredVariants(rawParent, parent, matched, log)
	}
	return e.replaceVariantsFromAPI(ctx, parent, log)
}

func (e *Engine) replaceInferredVariants(rawParent *erp.RawProduct, parent *models.Product, matched []erp.RawProduct, log *logger.Logger) (int, int) {
	synced, errs := 0, 0
	keep := make([]int64, 0, len(matched))

	for i := range matched {
		raw := &matched[i]
		asProduct := e.transformer.TransformProduct(raw)
		if asProduct.ExternalID == 0 {
			continue
		}

		variant := &models.Variant{
			ExternalID:      asProduct.ExternalID,
			ProductID:       parent.ID,
			SKUVariant:      raw.Ref,
			PriceModifier:   asProduct.Price - parent.Price,
			Attributes:      inferVariantAttributes(parent.Description, asProduct.Description),
			ExternalCreated: asProduct.ExternalCreated,
			ExternalUpdated: asProduct.ExternalUpdated,
		}

		if err := e.store.UpsertVariant(variant); err != nil {
			log.Error("failed to upsert variant %d of product %d: %v", variant.ExternalID, parent.ExternalID, err)
			errs++
			continue
		}
		keep = append(keep, variant.ExternalID)
		synced++
	}

	if err := e.store.DeleteVariantsExcept(parent.ID, keep); err != nil {
		log.Error("failed to prune stale variants of product %d: %v", parent.ExternalID, err)
		errs++
	}
	return synced, errs
}

func (e *Engine) replaceVariantsFromAPI(ctx context.Context, parent *models.Product, log *logger.Logger) (int, int) {
	rawVariants, err := e.client.FetchProductVariants(ctx, parent.ExternalID)
	if err != nil {
		if errors.Is(err, erp.ErrNotFound) {
			rawVariants = nil
		} else {
			log.Error("failed to fetch variants for product %d: %v", parent.ExternalID, err)
			return 0, 1
		}
	}

	synced, errs := 0, 0
	keep := make([]int64, 0, len(rawVariants))
	for i := range rawVariants {
		variant := e.transformer.TransformVariant(&rawVariants[i], parent.ID)
		if variant.ExternalID == 0 {
			continue
		}
		if err := e.store.UpsertVariant(variant); err != nil {
			log.Error("failed to upsert variant %d of product %d: %v", variant.ExternalID, parent.ExternalID, err)
			errs++
			continue
		}
		keep = append(keep, variant.ExternalID)
		synced++
	}

	if err := e.store.DeleteVariantsExcept(parent.ID, keep); err != nil {
		log.Error("failed to prune stale variants of product %d: %v", parent.ExternalID, err)
		errs++
	}
	return synced, errs
}

// inferVariantAttributes derives the variant's distinguishing attribute
// from what its description adds over the parent's. A "Color: Red"
// shaped diff becomes {"Color": "Red"}; anything else is kept whole
// under "variant".
func inferVariantAttributes(parentDesc, variantDesc string) models.JSONMap {
	diff := descriptionDiff(parentDesc, variantDesc)
	if diff == "" {
		return models.JSONMap{}
	}
	if strings.Count(diff, ":") == 1 {
		parts := strings.SplitN(diff, ":", 2)
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key != "" {
			return models.JSONMap{key: value}
		}
	}
	return models.JSONMap{"variant": diff}
}

// descriptionDiff returns what variant adds over parent: the remainder
// after removing the parent text if contained, else the remainder after
// trimming the longest common prefix.
func descriptionDiff(parent, variant string) string {
	parent = strings.TrimSpace(parent)
	variant = strings.TrimSpace(variant)
	if variant == "" || variant == parent {
		return ""
	}
	if parent != "" {
		if idx := strings.Index(variant, parent); idx >= 0 {
			return strings.TrimSpace(variant[:idx] + variant[idx+len(parent):])
		}
	}
	i := 0
	for i < len(parent) && i < len(variant) && parent[i] == variant[i] {
		i++
	}
	return strings.TrimSpace(variant[i:])
}

// --- Stage 3: images ---

func (e *Engine) syncImages(ctx context.Context, log *logger.Logger) (int, int) {
	log.Info("starting image metadata sync")
	products, err := e.store.Products()
	if err != nil {
		log.Error("failed to list products for image sync: %v", err)
		return 0, 1
	}

	synced, errs := 0, 0
	for i := range products {
		count, perrs := e.syncImagesForProduct(ctx, &products[i], log)
		synced += count
		errs += perrs
	}
	log.Info("image metadata sync finished: %d rows", synced)
	return synced, errs
}

func (e *Engine) syncImagesForProduct(ctx context.Context, product *models.Product, log *logger.Logger) (int, int) {
	raw, err := e.client.FetchProductByID(ctx, product.ExternalID)
	if err != nil {
		if errors.Is(err, erp.ErrNotFound) {
			return 0, 0
		}
		log.Error("failed to fetch product %d for image sync: %v", product.ExternalID, err)
		return 0, 1
	}

	synced, errs := 0, 0
	productID := product.ID
	for _, rawImage := range raw.ImageList() {
		filename := imageFilename(&rawImage)
		if filename == "" {
			log.Warn("skipping image with no filename for product %d", product.ExternalID)
			continue
		}
		img := e.transformer.TransformProductImage(&rawImage, &productID, nil, filename)
		if err := e.store.UpsertImage(img); err != nil {
			log.Error("failed to upsert image %q for product %d: %v", filename, product.ExternalID, err)
			errs++
			continue
		}
		synced++
	}

	count, ierrs := e.inheritImagesForVariants(product, log)
	return synced + count, errs + ierrs
}

// inheritImagesForVariants copies the parent's images to variants that
// have none of their own. The copies keep both owner references set.
func (e *Engine) inheritImagesForVariants(product *models.Product, log *logger.Logger) (int, int) {
	variants, err := e.store.VariantsByProductID(product.ID)
	if err != nil {
		log.Error("failed to list variants of product %d for image inheritance: %v", product.ExternalID, err)
		return 0, 1
	}
	if len(variants) == 0 {
		return 0, 0
	}

	baseImages, err := e.store.BaseImagesForProduct(product.ID)
	if err != nil {
		log.Error("failed to list base images of product %d: %v", product.ExternalID, err)
		return 0, 1
	}
	if len(baseImages) == 0 {
		return 0, 0
	}

	synced, errs := 0, 0
	for _, variant := range variants {
		hasOwn, err := e.store.VariantHasImages(variant.ID)
		if err != nil {
			log.Error("failed to check images of variant %d: %v", variant.ExternalID, err)
			errs++
			continue
		}
		if hasOwn {
			continue
		}
		for _, base := range baseImages {
			variantID := variant.ID
			inherited := base
			inherited.ID = 0
			inherited.VariantID = &variantID
			if err := e.store.UpsertImage(&inherited); err != nil {
				log.Error("failed to copy image %q to variant %d: %v", base.OriginalFilename, variant.ExternalID, err)
				errs++
				continue
			}
			synced++
		}
	}
	return synced, errs
}

// imageFilename extracts a usable filename from an image entry, falling
// back to the basename of whatever location hint is present.
func imageFilename(raw *erp.RawImage) string {
	if raw.Filename != "" {
		return raw.Filename
	}
	if src := raw.SourcePath(); src != "" {
		return path.Base(src)
	}
	return ""
}

// --- Stage 4: stock ---

func (e *Engine) syncStock(ctx context.Context, log *logger.Logger) (int, int) {
	log.Info("starting stock sync")
	targets, err := e.store.StockTargets()
	if err != nil {
		log.Error("failed to enumerate stock targets: %v", err)
		return 0, 1
	}

	synced, errs := 0, 0
	for _, target := range targets {
		count, terrs := e.syncStockTarget(ctx, target, log)
		synced += count
		errs += terrs
	}
	log.Info("stock sync finished: %d rows", synced)
	return synced, errs
}

func (e *Engine) syncStockTarget(ctx context.Context, target store.StockTarget, log *logger.Logger) (int, int) {
	resp, err := e.client.FetchProductStock(ctx, target.ExternalID)
	if err != nil {
		// No stock records is a valid empty result.
		if errors.Is(err, erp.ErrNotFound) {
			return 0, 0
		}
		log.Error("failed to fetch stock for external id %d: %v", target.ExternalID, err)
		return 0, 1
	}
	if resp == nil || len(resp.StockWarehouses) == 0 {
		return 0, 0
	}

	productID := target.ProductID
	synced, errs := 0, 0
	for warehouseID, wh := range resp.StockWarehouses {
		entry := erp.StockEntry{Qty: wh.Real, WarehouseID: warehouseID, TMS: resp.TMS}
		level := e.transformer.TransformStockLevel(entry, &productID, target.VariantID)
		if err := e.store.UpsertStockLevel(level); err != nil {
			log.Error("failed to upsert stock for external id %d warehouse %s: %v", target.ExternalID, warehouseID, err)
			errs++
			continue
		}
		synced++
	}
	return synced, errs
}

// --- Incremental (webhook-driven) operations ---

// SyncProductByID reconciles a single product: upsert, then category
// links, variants, images, and stock, each step isolated so one failure
// does not block the rest.
func (e *Engine) SyncProductByID(ctx context.Context, externalID int64) error {
	log := e.logger.WithField("product_external_id", externalID)

	raw, err := e.client.FetchProductByID(ctx, externalID)
	if err != nil {
		// Gone between the event and the fetch. A delete event will
		// follow, or already did.
		if errors.Is(err, erp.ErrNotFound) {
			log.Warn("product no longer exists upstream, nothing to sync")
			return nil
		}
		return err
	}

	product := e.transformer.TransformProduct(raw)
	if err := e.store.UpsertProduct(product); err != nil {
		return err
	}

	catMap, err := e.store.CategoryIDMap()
	if err != nil {
		log.Error("failed to build category id map: %v", err)
	} else if err := e.relinkCategories(ctx, product, catMap, log); err != nil {
		log.Error("category relink failed: %v", err)
	}

	if _, errs := e.replaceVariantsFromAPI(ctx, product, log); errs > 0 {
		log.Error("variant replace completed with %d errors", errs)
	}

	if _, errs := e.syncImagesForProduct(ctx, product, log); errs > 0 {
		log.Error("image sync completed with %d errors", errs)
	}

	if err := e.syncStockForLocalProduct(ctx, product.ID, log); err != nil {
		log.Error("stock sync failed: %v", err)
	}
	return nil
}

// DeleteProduct removes a product by external id. Already deleted is an
// accepted terminal state.
func (e *Engine) DeleteProduct(ctx context.Context, externalID int64) error {
	found, err := e.store.DeleteProductByExternalID(externalID)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Info("product %d already absent, nothing to delete", externalID)
	}
	return nil
}

// SyncCategory reconciles a single category, resolving its parent from
// the cache. A missing parent is tolerated and left unresolved.
func (e *Engine) SyncCategory(ctx context.Context, externalID int64) error {
	raw, err := e.client.FetchCategoryByID(ctx, externalID)
	if err != nil {
		if errors.Is(err, erp.ErrNotFound) {
			e.logger.Warn("category %d no longer exists upstream, nothing to sync", externalID)
			return nil
		}
		return err
	}

	cat := e.transformer.TransformCategory(raw)
	if cat.ParentExternalID != nil {
		parent, err := e.store.CategoryByExternalID(*cat.ParentExternalID)
		if err != nil {
			return err
		}
		if parent != nil {
			cat.ParentID = &parent.ID
		} else {
			e.logger.Warn("parent category %d not found locally for category %d", *cat.ParentExternalID, externalID)
		}
	}
	return e.store.UpsertCategory(cat)
}

// DeleteCategory removes a category by external id. Already deleted is
// an accepted terminal state.
func (e *Engine) DeleteCategory(ctx context.Context, externalID int64) error {
	found, err := e.store.DeleteCategoryByExternalID(externalID)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Info("category %d already absent, nothing to delete", externalID)
	}
	return nil
}

// SyncStockForProduct re-derives absolute stock for one product from
// the ERP. Movement deltas are never applied directly, so replay and
// reordering of movement events cannot skew quantities.
func (e *Engine) SyncStockForProduct(ctx context.Context, externalID int64) error {
	product, err := e.store.ProductByExternalID(externalID)
	if err != nil {
		return err
	}
	if product == nil {
		e.logger.Warn("stock event for unknown product %d, skipping", externalID)
		return nil
	}
	return e.syncStockForLocalProduct(ctx, product.ID, e.logger.WithField("product_external_id", externalID))
}

func (e *Engine) syncStockForLocalProduct(ctx context.Context, productID uint, log *logger.Logger) error {
	targets, err := e.store.StockTargetsForProduct(productID)
	if err != nil {
		return err
	}
	for _, target := range targets {
		e.syncStockTarget(ctx, target, log)
	}
	return nil
}
