package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLifecycleTransitionsTotal_Increments(t *testing.T) {
	LifecycleTransitionsTotal.Reset()
	LifecycleTransitionsTotal.WithLabelValues("start_batch", "success").Inc()
	got := testutil.ToFloat64(LifecycleTransitionsTotal.WithLabelValues("start_batch", "success"))
	assert.Equal(t, float64(1), got)
}

func TestViolationsTotal_LabeledByRule(t *testing.T) {
	ViolationsTotal.Reset()
	ViolationsTotal.WithLabelValues("PROGRESS_WITHOUT_APPROVAL").Inc()
	got := testutil.ToFloat64(ViolationsTotal.WithLabelValues("PROGRESS_WITHOUT_APPROVAL"))
	assert.Equal(t, float64(1), got)
}
