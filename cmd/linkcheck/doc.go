// Package main hosts the linkcheck entrypoint.
//
// Architecture overview:
//   - Input: internal/table reads a CSV or XLSX table and detects the URL column by name (url, link, website) or by
//     sampling cells for http(s) links.
//   - Resume: internal/checkpoint reloads the previous output CSV and its JSON meta record, then reconciles them with
//     the input, by position when the input digest is unchanged and by URL otherwise.
//   - Verification: internal/verifier runs an advisory Colly probe and the authoritative chromedp render (navigate,
//     short readiness wait, long readiness wait) under a per-URL ceiling.
//   - Loop & persistence: internal/runner checks rows in order, persists through the checkpoint manager at the
//     configured cadence, and always flushes (CSV, XLSX, mirrors) on exit, including SIGINT/SIGTERM.
//   - Fanout: progress events are batched by internal/progress into zap logs, Prometheus metrics, the /v1/status
//     snapshot, an optional Postgres run ledger, and an optional Pub/Sub run summary.
//
// Quick checklist:
//   - Run locally: go run ./cmd/linkcheck check --input colleges.xlsx --output out/results.csv
//   - Configure with a YAML file (--config) or LINKCHECK_* env vars, e.g. LINKCHECK_RENDER_MAX_PER_URL=90s,
//     LINKCHECK_GCS_BUCKET, LINKCHECK_POSTGRES_DSN, LINKCHECK_PUBSUB_PROJECT_ID and LINKCHECK_PUBSUB_TOPIC.
//   - Rerunning the same command resumes; --force-restart starts over.
package main
