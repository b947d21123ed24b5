// Command ukpuru harvests the Ukpuru blog into a clean image dataset.
//
// Run overview:
//   - Discovery: the blog front page is fetched with m=0 (desktop layout) and the "older posts" chain is followed
//     until a page yields no post links or points back at a page already visited. Page fetches share one per-host
//     pacer (sources.ukpuru.delay).
//   - Scrape: every post becomes one record; each image in the post body is downloaded into
//     <storage.root>/ukpuru/raw/images under a name derived from the post title and the image position. Files that are
//     already present are never requested again, so an interrupted run can simply be restarted.
//   - Clean: every raw image is structurally verified and the metadata is rewritten into
//     <storage.root>/ukpuru/clean so that each record lists only images that passed. Posts are kept even when no image
//     survives (sources.ukpuru.empty_policy=keep-regardless).
//   - Publish: with HARVEST_PUBLISH_TOKEN and publish.bucket set the clean directory is uploaded to GCS (3 attempts,
//     10s apart by default); otherwise the clean dataset stays on disk and a warning is logged.
//
// Quick checklist:
//   - HARVEST_CONFIG=path/to/config.yaml for a config file, or HARVEST_* variables for single keys.
//   - HARVEST_LOGGING_FILE=data/ukpuru/run.log keeps a copy of the run log next to the data.
//   - HARVEST_METRICS_PUSHGATEWAY_URL pushes run counters when the process ends.
//   - Exit status: 0 when the run completes (individual asset failures included), 1 on a fatal error, 130 when
//     interrupted.
package main
