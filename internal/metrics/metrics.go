// Package metrics defines package-level Prometheus metric variables for the
// applinks service. Call Register() once at startup to expose them on the
// default registry, or RegisterWith() to use an isolated registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RecordsStored counts attribution records accepted, by platform.
	RecordsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_records_stored_total",
		Help: "Attribution records stored, by platform.",
	}, []string{"platform"})

	// RecordsRetrieved counts records handed out (and consumed), by platform.
	RecordsRetrieved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_records_retrieved_total",
		Help: "Attribution records retrieved and consumed, by platform.",
	}, []string{"platform"})

	// RetrievalsNotFound counts retrieval calls with no eligible record.
	RetrievalsNotFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_retrievals_not_found_total",
		Help: "Retrieval calls that found no eligible record, by platform.",
	}, []string{"platform"})

	// InvalidCodes counts store calls rejected by provider-code validation.
	InvalidCodes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applinks_invalid_provider_codes_total",
		Help: "Store calls rejected because the provider code was malformed.",
	})

	// StoreErrors counts backend failures, labelled by operation.
	// Valid operations: put, take, prune.
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_store_errors_total",
		Help: "Record store backend failures, by operation (put|take|prune).",
	}, []string{"op"})

	// RecordsPruned counts records removed by the janitor sweep.
	RecordsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applinks_records_pruned_total",
		Help: "Expired records removed by the periodic cleanup sweep.",
	})

	// RecordsLive is a gauge of records currently held, by platform.
	RecordsLive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "applinks_records_live",
		Help: "Records currently held in the store, by platform.",
	}, []string{"platform"})

	// AppInfoLookups counts app-metadata lookups, labelled by outcome.
	// Valid outcomes: hit, miss, error.
	AppInfoLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_appinfo_lookups_total",
		Help: "App metadata lookups, by outcome (hit|miss|error).",
	}, []string{"outcome"})

	// VisitsRecorded counts landing-page visits, by platform.
	VisitsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applinks_visits_total",
		Help: "Landing-page visits, by platform.",
	}, []string{"platform"})

	// BboltDBSizeBytes is the on-disk size of the bbolt store ("bolt" backend only).
	BboltDBSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "applinks_bbolt_db_size_bytes",
		Help: "Size of the bbolt database file in bytes.",
	})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		RecordsStored,
		RecordsRetrieved,
		RetrievalsNotFound,
		InvalidCodes,
		StoreErrors,
		RecordsPruned,
		RecordsLive,
		AppInfoLookups,
		VisitsRecorded,
		BboltDBSizeBytes,
	)
}
