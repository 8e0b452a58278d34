package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "hookline")
				So(manager.subsystem, ShouldEqual, "collector")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.eventsAccepted.WithLabelValues("hook").Inc()

			Convey("Then metric names and labels should follow the options", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, mf := range families {
					if mf.GetName() == "test_namespace_test_subsystem_events_accepted_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingestion outcomes", func() {
			before := testutil.ToFloat64(globalManager.eventsAccepted.WithLabelValues("otel"))
			RecordEventReceived("otel")
			RecordEventAccepted("otel")
			RecordEventDeduped("otel")
			RecordEventRejected("validation")

			Convey("Then the per-source counters should move", func() {
				So(testutil.ToFloat64(globalManager.eventsAccepted.WithLabelValues("otel")), ShouldEqual, before+1)
			})
		})

		Convey("When a source is not a known producer", func() {
			before := testutil.ToFloat64(globalManager.eventsReceived.WithLabelValues("unknown"))
			RecordEventReceived("carrier-pigeon")

			Convey("Then it should be folded into the unknown label", func() {
				So(testutil.ToFloat64(globalManager.eventsReceived.WithLabelValues("unknown")), ShouldEqual, before+1)
			})
		})

		Convey("When recording normalizer counts", func() {
			before := testutil.ToFloat64(globalManager.otelRecordsDropped)
			RecordOTELRecordsDropped(3)
			RecordOTELRecordsDropped(0)
			RecordTranscriptLinesSkipped(2)
			RecordNormalizedEvents("transcript", 4)

			Convey("Then zero additions should be ignored", func() {
				So(testutil.ToFloat64(globalManager.otelRecordsDropped), ShouldEqual, before+3)
			})
		})

		Convey("When recording operational metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				RecordProcessingFailure()
				RecordProcessingLatency(12.5)
				RecordDispatchDropped()
				RecordStoreError()
				RecordHTTPRequest("hooks", "POST", "202")
				RecordHTTPRequestDuration("hooks", "POST", "202", 1.5)
				RecordErrorByComponent("worker", "processor_error")
			}, ShouldNotPanic)

			So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
			So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
		})
	})
}

func TestRegisterCollector(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		c := collectors.NewBuildInfoCollector()

		Convey("When registering a collector twice", func() {
			first := RegisterCollector(c)
			second := RegisterCollector(c)

			Convey("Then the duplicate should be reported as a register error", func() {
				So(first, ShouldBeNil)
				So(errors.Is(second, ErrRegister), ShouldBeTrue)
			})
		})
	})
}
