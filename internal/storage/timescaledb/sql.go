package timescaledb

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;`

const createDailyViewSQL = `CREATE OR REPLACE VIEW anomalies_daily AS
SELECT
	date_trunc('day', a.created_at) AS day,
	s.class_name,
	count(*) AS anomaly_count,
	sum(s.end_seconds - s.start_seconds) AS total_duration,
	max(s.peak_amplitude) AS max_peak_amplitude
FROM analyses a
JOIN segments s ON s.analysis_id = a.id
GROUP BY 1, 2;`
