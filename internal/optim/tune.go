package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mdsim/internal/automation"
)

// Tune runs base at every grid point and returns the parameters that give the
// smallest absolute value of metric.
func Tune(ctx context.Context, r *automation.Runner, base automation.BaseFunc, g *GridSearch, metric string) (map[string]float64, float64, error) {
	n := 0
	return g.Search(ctx, func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := base()
		if err != nil {
			return 0, err
		}
		if err := automation.Apply(cfg, params); err != nil {
			return 0, err
		}
		cfg.Name = fmt.Sprintf("%s_tune%d", cfg.Name, n)
		n++
		_, meta, err := r.RunConfig(ctx, cfg)
		if err != nil {
			return 0, err
		}
		v, ok := meta.Metrics[metric]
		if !ok {
			return 0, fmt.Errorf("metric %s not recorded", metric)
		}
		return math.Abs(v), nil
	})
}
