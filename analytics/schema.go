package analytics

// ─── Decision Log Schema ─────────────────────────────────────
//
// DecisionEventSchema documents the table a dashboard would query for
// historical decision audit trails. The engine itself never reads or
// writes this table — it is purely a caller-side record of what
// Evaluate returned and when, kept for after-the-fact review of
// ship/keep-testing calls.

const DecisionEventSchema = `
CREATE TABLE IF NOT EXISTS decision_events (
    event_id          String,
    project_id        String,
    experiment_key    String,

    decision_status   String,          -- keep_testing, ready_to_ship, practically_equivalent, collecting_data
    leading_variant   String,
    confidence_pct    Float64,

    raw_effect_size   Float64,
    shrunk_effect_size Float64,
    prior_used        String,          -- user_specified, project_historical, platform_default

    total_exposures   UInt32,
    total_conversions UInt32,

    variants          String,          -- JSON array of variant names
    probability_best  String,          -- JSON object variant -> probability
    expected_loss     String,          -- JSON object variant -> expected loss
    allocation        String,          -- JSON object variant -> next-batch traffic share

    mc_samples        UInt32,
    mc_seed           Int64,

    created_at        DateTime64(3) DEFAULT now64(3),
    event_date        Date DEFAULT toDate(created_at)
)
ENGINE = MergeTree()
PARTITION BY toYYYYMM(event_date)
ORDER BY (project_id, experiment_key, created_at)
TTL event_date + INTERVAL 365 DAY
SETTINGS index_granularity = 8192;
`

// DailyDecisionMV aggregates decision outcomes per project per day,
// the query a dashboard would hit for a "ship rate over time" chart.
const DailyDecisionMV = `
CREATE MATERIALIZED VIEW IF NOT EXISTS daily_decision_mv
ENGINE = SummingMergeTree()
PARTITION BY toYYYYMM(event_date)
ORDER BY (project_id, decision_status, event_date)
AS SELECT
    project_id,
    decision_status,
    toDate(created_at) AS event_date,
    count()            AS decision_count,
    avg(confidence_pct) AS avg_confidence_pct
FROM decision_events
GROUP BY project_id, decision_status, event_date;
`

// AllSchemas returns all DDL statements in creation order.
func AllSchemas() []string {
	return []string{
		DecisionEventSchema,
		DailyDecisionMV,
	}
}
