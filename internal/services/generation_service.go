package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"pet-portrait-backend/internal/imagen"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/retry"
	"pet-portrait-backend/internal/themes"
)

const (
	reasonCanceled         = "generation canceled"
	reasonDeadlineExceeded = "pipeline deadline exceeded"
	reasonPetNameRequired  = "theme requires a pet name"

	// Extra calls a theme may make beyond the batches it needs, for when
	// the upstream returns fewer images than asked.
	extraCallsPerTheme = 2
	// Optimistic order updates retried with a fresh read before giving up.
	orderUpdateAttempts = 3
)

var errWriterStopped = errors.New("image writer stopped")

// ImageGenerator is the part of the generation client the orchestrator calls.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagen.GenerateRequest) ([]imagen.Asset, error)
}

type GenerationOptions struct {
	MaxParallelThemes int
	PipelineDeadline  time.Duration
}

type GenerateInput struct {
	OrderID        uuid.UUID
	SourcePhotoRef string
	ProductType    string
	Breed          string
	Details        string
	PetName        string
	AutoApprove    bool
}

// GenerateInputFromOrder builds the generation input for a stored order.
func GenerateInputFromOrder(order models.Order, autoApprove bool) GenerateInput {
	return GenerateInput{
		OrderID:        order.ID,
		SourcePhotoRef: order.SourcePhotoRef,
		ProductType:    order.ProductType,
		Breed:          order.Breed,
		Details:        order.Details,
		PetName:        order.PetName,
		AutoApprove:    autoApprove,
	}
}

type ThemeResult struct {
	Theme    string           `json:"theme"`
	Type     models.ImageType `json:"type"`
	Bonus    bool             `json:"bonus"`
	Required int              `json:"required"`
	Produced int              `json:"produced"`
	Attempts int              `json:"attempts"`
	Failed   bool             `json:"failed"`
	Error    string           `json:"error,omitempty"`
}

func (r *ThemeResult) fail(reason string) {
	r.Failed = true
	r.Error = reason
}

type GenerationReport struct {
	OrderID     uuid.UUID     `json:"order_id"`
	ProductType string        `json:"product_type"`
	Themes      []ThemeResult `json:"themes"`
	PrimaryMet  bool          `json:"primary_met"`
	TotalImages int           `json:"total_images"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

func (r GenerationReport) Failures() []ThemeResult {
	var out []ThemeResult
	for _, t := range r.Themes {
		if t.Failed {
			out = append(out, t)
		}
	}
	return out
}

// Summary lists failed themes as "theme: produced x of y (reason)".
func (r GenerationReport) Summary() string {
	failures := r.Failures()
	if len(failures) == 0 {
		return ""
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: produced %d of %d (%s)", f.Theme, f.Produced, f.Required, f.Error))
	}
	return strings.Join(parts, "; ")
}

type GenerationService struct {
	orders    OrderRepository
	images    ImageRepository
	catalog   ThemeResolver
	generator ImageGenerator
	publisher AssetPublisher
	policy    retry.Policy
	opts      GenerationOptions
	logger    zerolog.Logger
	now       func() time.Time
}

func NewGenerationService(
	orders OrderRepository,
	images ImageRepository,
	catalog ThemeResolver,
	generator ImageGenerator,
	publisher AssetPublisher,
	policy retry.Policy,
	opts GenerationOptions,
	logger zerolog.Logger,
) *GenerationService {
	if policy.Retryable == nil {
		policy.Retryable = imagen.IsRetryable
	}
	if opts.MaxParallelThemes < 1 {
		opts.MaxParallelThemes = 1
	}
	if opts.PipelineDeadline <= 0 {
		opts.PipelineDeadline = 15 * time.Minute
	}
	return &GenerationService{
		orders:    orders,
		images:    images,
		catalog:   catalog,
		generator: generator,
		publisher: publisher,
		policy:    policy,
		opts:      opts,
		logger:    logger.With().Str("component", "generation").Logger(),
		now:       time.Now,
	}
}

// HasPrimaryImages reports whether the order already has primary images.
// Generate appends after existing rows, so callers check this first.
func (s *GenerationService) HasPrimaryImages(ctx context.Context, orderID uuid.UUID) (bool, error) {
	maxOrders, err := s.images.MaxDisplayOrders(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to count images: %w", err)
	}
	_, ok := maxOrders[models.ImageTypePrimary]
	return ok, nil
}

// Generate runs every theme of the order's product and records the outcome
// on the order. Partial success is not an error; the report lists the
// failed themes. ErrPipelineFailed is returned when nothing was produced and
// ErrGenerationCanceled when ctx ended first, in which case the images
// already written stay and the order's generation status is left alone.
//
// Generate returns once the pipeline deadline passes even if generator or
// storage calls are still in flight. Their results are discarded.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (GenerationReport, error) {
	return s.generate(ctx, in, s.markRunning)
}

// GenerateOrder runs Generate for a stored order. The order's generation is
// claimed atomically first and ErrConflict is returned when it is already
// running or complete, so a redelivered job never appends a second batch.
func (s *GenerationService) GenerateOrder(ctx context.Context, orderID uuid.UUID, autoApprove bool) (GenerationReport, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return GenerationReport{OrderID: orderID}, err
	}
	switch order.GenerationStatus {
	case models.GenerationRunning, models.GenerationComplete:
		return GenerationReport{OrderID: orderID, ProductType: order.ProductType},
			fmt.Errorf("%w: generation is %s", ErrConflict, order.GenerationStatus)
	}
	return s.generate(ctx, GenerateInputFromOrder(order, autoApprove), s.claimRunning)
}

func (s *GenerationService) markRunning(ctx context.Context, orderID uuid.UUID) error {
	running, cleared := models.GenerationRunning, ""
	if _, err := s.updateGeneration(ctx, orderID, models.OrderPatch{
		GenerationStatus: &running,
		GenerationError:  &cleared,
	}); err != nil {
		return fmt.Errorf("failed to mark generation running: %w", err)
	}
	return nil
}

func (s *GenerationService) claimRunning(ctx context.Context, orderID uuid.UUID) error {
	if _, err := s.orders.ClaimGeneration(ctx, orderID); err != nil {
		return fmt.Errorf("failed to claim generation: %w", err)
	}
	return nil
}

func (s *GenerationService) generate(ctx context.Context, in GenerateInput, start func(context.Context, uuid.UUID) error) (GenerationReport, error) {
	report := GenerationReport{OrderID: in.OrderID, ProductType: in.ProductType, StartedAt: s.now()}

	sel, err := s.catalog.Resolve(in.ProductType)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	petName := strings.TrimSpace(in.PetName)
	if sel.Primary.RequiresText && petName == "" {
		return report, fmt.Errorf("%w: theme %s requires a pet name", ErrValidation, sel.Primary.Name)
	}
	if strings.TrimSpace(in.SourcePhotoRef) == "" {
		return report, fmt.Errorf("%w: source photo is required", ErrValidation)
	}

	order, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return report, err
	}
	if order.Status.Terminal() {
		return report, fmt.Errorf("%w: order is %s", ErrValidation, order.Status)
	}

	seed, err := s.images.MaxDisplayOrders(ctx, in.OrderID)
	if err != nil {
		return report, fmt.Errorf("failed to read display orders: %w", err)
	}

	if err := start(ctx, in.OrderID); err != nil {
		return report, err
	}

	logger := s.logger.With().Str("order_id", in.OrderID.String()).Str("product_type", in.ProductType).Logger()
	logger.Info().Int("themes", 1+len(sel.Bonus)).Msg("generation started")

	runCtx, cancel := context.WithTimeout(ctx, s.opts.PipelineDeadline)
	defer cancel()

	tasks := sel.All()
	run := &generationRun{
		svc:     s,
		in:      in,
		petName: petName,
		caller:  ctx,
		runCtx:  runCtx,
		callCtx: context.WithoutCancel(ctx),
		inserts: make(chan insertRequest),
		quit:    make(chan struct{}),
		results: make([]ThemeResult, len(tasks)),
		logger:  logger,
	}

	var runnable []int
	for i, theme := range tasks {
		bonus := i > 0
		run.results[i] = ThemeResult{
			Theme:    theme.Name,
			Type:     imageTypeFor(bonus),
			Bonus:    bonus,
			Required: theme.MinOutputs,
		}
		if theme.RequiresText && petName == "" {
			run.results[i].fail(reasonPetNameRequired)
			continue
		}
		runnable = append(runnable, i)
	}

	writerDone := make(chan struct{})
	go run.writer(nextDisplayOrders(seed), writerDone)

	themesDone := make(chan struct{})
	go func() {
		defer close(themesDone)
		var g errgroup.Group
		g.SetLimit(s.opts.MaxParallelThemes)
		for _, i := range runnable {
			g.Go(func() error {
				run.runTheme(tasks[i], i > 0, &run.results[i])
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-themesDone:
	case <-runCtx.Done():
		if ctx.Err() == nil {
			logger.Warn().Dur("deadline", s.opts.PipelineDeadline).Msg("pipeline deadline reached with themes in flight")
		}
	}
	close(run.quit)
	<-writerDone

	report.Themes = run.seal()
	for _, r := range report.Themes {
		report.TotalImages += r.Produced
	}
	report.PrimaryMet = report.Themes[0].Produced >= report.Themes[0].Required
	report.FinishedAt = s.now()

	if ctx.Err() != nil {
		logger.Warn().Int("images", report.TotalImages).Msg("generation canceled")
		return report, fmt.Errorf("%w: %d images kept", ErrGenerationCanceled, report.TotalImages)
	}

	return report, s.finalize(ctx, report, logger)
}

func (s *GenerationService) finalize(ctx context.Context, report GenerationReport, logger zerolog.Logger) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode generation report: %w", err)
	}

	status, message := models.GenerationComplete, ""
	switch {
	case report.TotalImages == 0:
		status = models.GenerationFailed
		message = "no images generated: " + report.Summary()
	case !report.PrimaryMet:
		status = models.GenerationFailed
		message = report.Summary()
	}

	if _, err := s.updateGeneration(ctx, report.OrderID, models.OrderPatch{
		GenerationStatus: &status,
		GenerationError:  &message,
		GenerationReport: raw,
	}); err != nil {
		return fmt.Errorf("failed to record generation result: %w", err)
	}

	event := logger.Info()
	if status == models.GenerationFailed {
		event = logger.Warn().Str("failures", report.Summary())
	}
	event.Int("images", report.TotalImages).Bool("primary_met", report.PrimaryMet).Msg("generation finished")

	if report.TotalImages == 0 {
		return fmt.Errorf("%w: %s", ErrPipelineFailed, message)
	}
	return nil
}

// updateGeneration patches generation fields without touching the order
// status, re-reading the order when a concurrent transition wins the race.
func (s *GenerationService) updateGeneration(ctx context.Context, orderID uuid.UUID, patch models.OrderPatch) (models.Order, error) {
	var lastErr error
	for i := 0; i < orderUpdateAttempts; i++ {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		updated, err := s.orders.ApplyTransition(ctx, orderID, order.Status, patch)
		if !errors.Is(err, ErrConflict) {
			return updated, err
		}
		lastErr = err
	}
	return models.Order{}, lastErr
}

type insertRequest struct {
	img   models.Image
	res   *ThemeResult
	reply chan error
}

// generationRun is the state of one Generate call.
type generationRun struct {
	svc     *GenerationService
	in      GenerateInput
	petName string
	// caller is the context Generate was called with; runCtx adds the
	// pipeline deadline. External calls and writes use callCtx, which
	// ignores both so that an in-flight call is abandoned rather than torn.
	caller  context.Context
	runCtx  context.Context
	callCtx context.Context
	inserts chan insertRequest
	// quit is closed when the report is about to be taken.
	quit   chan struct{}
	logger zerolog.Logger

	mu      sync.Mutex
	results []ThemeResult
	sealed  bool
}

func (r *generationRun) stopReason() string {
	if r.caller.Err() != nil {
		return reasonCanceled
	}
	if r.runCtx.Err() != nil {
		return reasonDeadlineExceeded
	}
	return ""
}

// update applies fn to a theme result unless the report was already taken.
func (r *generationRun) update(res *ThemeResult, fn func(*ThemeResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		fn(res)
	}
}

func (r *generationRun) produced(res *ThemeResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return res.Produced
}

func (r *generationRun) failTheme(res *ThemeResult, reason string) {
	r.update(res, func(res *ThemeResult) { res.fail(reason) })
}

// seal freezes the results and fails every theme that had not finished.
// Themes still running afterwards change nothing.
func (r *generationRun) seal() []ThemeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true

	out := make([]ThemeResult, len(r.results))
	copy(out, r.results)
	reason := r.stopReason()
	if reason == "" {
		return out
	}
	for i := range out {
		if !out[i].Failed && out[i].Produced < out[i].Required {
			out[i].fail(reason)
		}
	}
	return out
}

func (r *generationRun) runTheme(theme themes.Theme, bonus bool, res *ThemeResult) {
	logger := r.logger.With().Str("theme", theme.Name).Bool("bonus", bonus).Logger()
	batch := theme.Batch()
	maxCalls := (theme.MinOutputs+batch-1)/batch + extraCallsPerTheme

	for calls := 0; r.produced(res) < res.Required; calls++ {
		if reason := r.stopReason(); reason != "" {
			r.failTheme(res, reason)
			return
		}
		if calls >= maxCalls {
			r.failTheme(res, fmt.Sprintf("upstream returned too few images after %d calls", calls))
			logger.Warn().Int("produced", r.produced(res)).Int("required", res.Required).Msg("theme short of minimum")
			return
		}

		req := imagen.GenerateRequest{
			Theme:           theme.Name,
			Trigger:         theme.Trigger,
			ReferenceImages: theme.ReferenceImages,
			SourcePhotoRef:  r.in.SourcePhotoRef,
			Count:           min(batch, res.Required-r.produced(res)),
			Style: imagen.Style{
				Breed:   r.in.Breed,
				PetName: r.petName,
				Details: r.in.Details,
			},
		}

		var generated []imagen.Asset
		attempts, err := r.svc.policy.Do(r.runCtx, func(_ context.Context, attempt int) error {
			var err error
			generated, err = r.svc.generator.Generate(r.callCtx, req)
			if err != nil {
				logger.Debug().Err(err).Int("attempt", attempt).Msg("generation call failed")
			}
			return err
		})
		r.update(res, func(res *ThemeResult) { res.Attempts += attempts })
		if err != nil {
			if reason := r.stopReason(); reason != "" {
				r.failTheme(res, reason)
				return
			}
			r.failTheme(res, err.Error())
			logger.Warn().Err(err).Int("attempts", attempts).Msg("theme failed")
			return
		}

		if len(generated) > req.Count {
			generated = generated[:req.Count]
		}
		for _, asset := range generated {
			if reason := r.stopReason(); reason != "" {
				r.failTheme(res, reason)
				return
			}
			if err := r.store(theme, bonus, asset, res); err != nil {
				if errors.Is(err, errWriterStopped) {
					r.failTheme(res, r.stopReason())
					return
				}
				logger.Warn().Err(err).Msg("failed to keep generated image")
				continue
			}
		}
	}
}

func (r *generationRun) store(theme themes.Theme, bonus bool, asset imagen.Asset, res *ThemeResult) error {
	published, err := r.svc.publisher.Publish(r.callCtx, r.in.OrderID, theme.Name, bonus, asset.URL)
	if err != nil {
		return err
	}

	status := models.ImageStatusPending
	if r.in.AutoApprove {
		status = models.ImageStatusApproved
	}
	img := models.Image{
		ID:          uuid.New(),
		OrderID:     r.in.OrderID,
		Type:        imageTypeFor(bonus),
		IsBonus:     bonus,
		Status:      status,
		ThemeName:   theme.Name,
		URL:         published.URL,
		StoragePath: published.StoragePath,
	}

	reply := make(chan error, 1)
	select {
	case r.inserts <- insertRequest{img: img, res: res, reply: reply}:
	case <-r.runCtx.Done():
		return errWriterStopped
	case <-r.quit:
		return errWriterStopped
	}
	return <-reply
}

// writer is the only goroutine that assigns display_order for the run.
// Counters and Produced move only after a successful insert so values stay
// contiguous and the report matches the stored rows.
func (r *generationRun) writer(next map[models.ImageType]int, done chan<- struct{}) {
	defer close(done)
	for {
		var req insertRequest
		select {
		case req = <-r.inserts:
		case <-r.quit:
			return
		}
		if r.stopReason() != "" {
			req.reply <- errWriterStopped
			continue
		}

		img := req.img
		img.DisplayOrder = next[img.Type]
		_, err := r.svc.images.InsertImage(r.callCtx, img)
		if errors.Is(err, ErrConflict) {
			// Someone else wrote to this order; continue after their rows.
			seed, seedErr := r.svc.images.MaxDisplayOrders(r.callCtx, img.OrderID)
			if seedErr == nil {
				next = nextDisplayOrders(seed)
				img.DisplayOrder = next[img.Type]
				_, err = r.svc.images.InsertImage(r.callCtx, img)
			}
		}
		if err == nil {
			next[img.Type]++
			r.update(req.res, func(res *ThemeResult) { res.Produced++ })
		}
		req.reply <- err
	}
}

func nextDisplayOrders(maxOrders map[models.ImageType]int) map[models.ImageType]int {
	next := map[models.ImageType]int{
		models.ImageTypePrimary: 0,
		models.ImageTypeUpsell:  0,
	}
	for typ, highest := range maxOrders {
		next[typ] = highest + 1
	}
	return next
}

func imageTypeFor(bonus bool) models.ImageType {
	if bonus {
		return models.ImageTypeUpsell
	}
	return models.ImageTypePrimary
}
