// Package httpupload provides an HTTP input for CSV history batches.
//
// Routes:
//
//	POST /batches?name=btc-2021.csv   body is the CSV, or a multipart form with a "file" part
//	GET  /health                      200 while running, 503 otherwise
//
// An accepted upload is published to the batches subject with filename and
// batch.id headers and answered with 202:
//
//	{"id": "0b6c...", "name": "btc-2021.csv", "bytes": 1042}
//
// The name comes from the query, then the multipart file name, then
// upload-<id>.csv. Only the base name is kept.
//
// Uploads beyond rate_limit (with burst) get 429 and Retry-After. Bodies
// over max_upload_bytes get 413. Empty bodies get 400. A publish failure
// gets 503.
package httpupload
