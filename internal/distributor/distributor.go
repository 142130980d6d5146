package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
)

// Destination publishes one record and returns a reference to the created
// item (page URL, file path, Drive link).
type Destination interface {
	Kind() gist.DestinationKind
	Publish(ctx context.Context, rec gist.Record) (string, error)
}

// Result holds the outcome of publishing one record.
type Result struct {
	Refs   map[gist.DestinationKind]string
	Errors map[gist.DestinationKind]error
}

// Succeeded reports whether at least one destination accepted the record.
func (r Result) Succeeded() bool {
	return len(r.Refs) > 0
}

// Err joins the destination errors in a stable order, nil when there are none.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	errs := make([]error, 0, len(kinds))
	for _, k := range kinds {
		errs = append(errs, fmt.Errorf("%s: %w", k, r.Errors[gist.DestinationKind(k)]))
	}
	return errors.Join(errs...)
}

// Distributor fans a record out to the registered destinations.
type Distributor struct {
	destinations map[gist.DestinationKind]Destination
	order        []gist.DestinationKind
	metrics      *instrumentation.Metrics
	logger       *slog.Logger
}

// New registers destinations. A later destination of the same kind replaces
// an earlier one.
func New(metrics *instrumentation.Metrics, logger *slog.Logger, destinations ...Destination) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Distributor{
		destinations: make(map[gist.DestinationKind]Destination, len(destinations)),
		metrics:      metrics,
		logger:       logger.With(logging.Stage("publish")),
	}
	for _, dest := range destinations {
		if _, exists := d.destinations[dest.Kind()]; !exists {
			d.order = append(d.order, dest.Kind())
		}
		d.destinations[dest.Kind()] = dest
	}
	return d
}

// Kinds lists the registered destinations in registration order.
func (d *Distributor) Kinds() []gist.DestinationKind {
	return append([]gist.DestinationKind(nil), d.order...)
}

// Publish sends rec to every destination in kinds. Each destination is
// attempted regardless of the others' outcome. Unknown kinds are reported as
// configuration errors.
func (d *Distributor) Publish(ctx context.Context, rec gist.Record, kinds []gist.DestinationKind) Result {
	res := Result{
		Refs:   make(map[gist.DestinationKind]string),
		Errors: make(map[gist.DestinationKind]error),
	}
	logger := logging.WithSource(d.logger, rec.SourceID)

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			res.Errors[kind] = err
			continue
		}

		dest, ok := d.destinations[kind]
		if !ok {
			res.Errors[kind] = gist.Configuration("publish", fmt.Errorf("destination %q is not configured", kind))
			continue
		}

		ref, err := d.publishOne(ctx, dest, rec)
		if err != nil {
			res.Errors[kind] = err
			logger.Warn("destination failed",
				logging.Destination(string(kind)),
				slog.String("category", string(gist.CategoryOf(err))),
				logging.Err(err))
			continue
		}
		res.Refs[kind] = ref
		logger.Info("published", logging.Destination(string(kind)), slog.String("ref", ref))
	}
	return res
}

func (d *Distributor) publishOne(ctx context.Context, dest Destination, rec gist.Record) (ref string, err error) {
	kind := string(dest.Kind())
	ctx, span := instrumentation.StartStageSpan(ctx, "publish",
		instrumentation.SourceAttr(rec.SourceID),
		instrumentation.DestinationAttr(kind))
	start := time.Now()
	defer func() {
		d.metrics.RecordPublish(ctx, kind, instrumentation.StatusFor(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	return dest.Publish(ctx, rec)
}
