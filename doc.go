// Package tractfeatures builds census tract features for Baltimore City and
// curates them into one analytic table on object storage.
//
// # Zones
//
// Data moves through three object store zones under one landing bucket:
//
//	raw/      source files as delivered (CSV, TXT, mirrored shape files)
//	clean/    Parquet datasets, one directory per dataset
//	curated/  the tract_features table, one row per tract
//
// Every dataset is a directory of Parquet part files. Conversions append one
// part per chunk; feature and curated writes replace the directory.
//
// # Jobs
//
// The tractfeatures command runs one job per subcommand:
//
//	tractfeatures tracts                      # standardize the tract layer
//	tractfeatures convert                     # raw CSV to clean Parquet
//	tractfeatures points --path banks.csv --feature banks
//	tractfeatures schools
//	tractfeatures curate-dynamic --summary summary.json
//	tractfeatures publish                     # Postgres and/or BigQuery
//
// A point feature counts the points that fall strictly within each tract.
// Tracts without points get a zero count, so every feature dataset has one
// row per tract. Dynamic curation discovers every feature directory, detects
// its tract id and value columns and left-merges the values onto the tract
// list.
//
// # Key Packages
//
//	pkg/config     - Paths, zones and jobs, layered from defaults, YAML and env
//	pkg/storage    - S3, GCS and local stores behind one URI resolver
//	pkg/dataset    - Parquet part-file datasets on any store
//	pkg/convert    - Chunked CSV to Parquet conversion
//	pkg/geo        - GeoJSON, GeoPackage, GeoParquet and CSV point layers
//	pkg/spatial    - Point-in-polygon index and per-tract counts
//	pkg/features   - The points feature job
//	pkg/curate     - Static and dynamic curation
//	pkg/publish    - Postgres and BigQuery loads of the curated table
//	pkg/errors     - Structured error handling
//	pkg/logger     - Structured logging
//	pkg/metrics    - Prometheus job metrics with Pushgateway push
//
// # Configuration
//
// Configuration is read from tractfeatures.yaml when present and overridden
// by TRACTFEATURES_* environment variables, e.g.
// TRACTFEATURES_STORAGE_BUCKET or TRACTFEATURES_CONVERT_CHUNK_SIZE. A .env
// file in the working directory is loaded first.
package tractfeatures
