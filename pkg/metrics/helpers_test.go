package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labelPairs ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labelPairs...)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string, labelPairs ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labelPairs...)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

// findMetric returns the series of name whose labels include every
// key/value in labelPairs.
func findMetric(mfs []*dto.MetricFamily, name string, labelPairs ...string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		matched := true
		for i := 0; i+1 < len(labelPairs); i += 2 {
			if !matchesLabel(metric.GetLabel(), labelPairs[i], labelPairs[i+1]) {
				matched = false
				break
			}
		}
		if matched {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series %v", name, labelPairs)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
