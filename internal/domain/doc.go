// Package domain models point-of-interest records ingested from open-data
// source tables and the geocoding contract used to resolve them.
//
// # Data Sources
//
// Each category is published as one tabular file with a header row. Two
// shapes exist in the wild:
//
//	Coordinate tables (grocery stores, fire houses, supermarkets, supercenters)
//	carry "Latitude" and "Longitude" columns as decimal-degree text,
//	e.g. "40.69699" and "-73.94938". Either cell may be blank when the
//	publisher could not place the row; such rows are skipped, not rejected.
//
//	Address tables (farmers markets) carry a free-text "Street Address"
//	column, e.g. "535 MARCY AVE", with no borough or ZIP. Coordinates are
//	resolved through a forward geocoder before the row is persisted.
//
// # Coordinates
//
// Coordinates are WGS-84 decimal degrees. A record either has both latitude
// and longitude or neither; [PointOfInterest] embeds a *[Coordinates] so a
// half-set pair cannot be represented. Parsed values outside [-90, 90] or
// [-180, 180], NaN, and infinities are rejected as malformed.
//
// # Idempotence
//
// A category is considered seeded once its store holds at least one record.
// Ingestion never re-reads a seeded category, so a run that failed part way
// through a category is not resumed on the next run.
package domain
