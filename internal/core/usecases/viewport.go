package usecases

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/pkg/debounce"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

// DefaultSettleWindow is how long the viewport must stay still before a view is computed.
const DefaultSettleWindow = 300 * time.Millisecond

// ViewSource serves bounds-filtered views of a dataset. *GeoDataController implements it.
type ViewSource interface {
	Name() string
	CurrentView(bounds *domain.ViewportBounds) (*geojson.FeatureCollection, domain.LoadState)
}

// ViewportAdapter turns a stream of map region changes into debounced view
// updates. Intermediate regions inside the settle window are dropped.
type ViewportAdapter struct {
	views     ViewSource
	sink      func(domain.ViewportUpdate)
	debouncer *debounce.Debouncer[domain.Region]
}

// NewViewportAdapter creates an adapter delivering settled views to sink.
// A non-positive settle window uses DefaultSettleWindow.
func NewViewportAdapter(views ViewSource, settle time.Duration, sink func(domain.ViewportUpdate)) *ViewportAdapter {
	if settle <= 0 {
		settle = DefaultSettleWindow
	}
	a := &ViewportAdapter{views: views, sink: sink}
	a.debouncer = debounce.New(settle, a.deliver)
	return a
}

// RegionChanged records the latest map region.
func (a *ViewportAdapter) RegionChanged(r domain.Region) {
	a.debouncer.Call(r)
}

// Close drops any pending update.
func (a *ViewportAdapter) Close() {
	a.debouncer.Stop()
}

func (a *ViewportAdapter) deliver(r domain.Region) {
	bounds := r.Bounds()
	fc, state := a.views.CurrentView(&bounds)
	metrics.ViewportUpdates.WithLabelValues(a.views.Name()).Inc()
	a.sink(domain.ViewportUpdate{
		Dataset: a.views.Name(),
		Bounds:  bounds,
		State:   state,
		Data:    fc,
	})
}
