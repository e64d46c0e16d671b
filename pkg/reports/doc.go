// Package reports aggregates client and deal figures into per-tenant
// financial summaries and archives them to S3.
//
// Reports are computed in the Financial scope domain, which is where the
// accountant's tenant-wide read applies. Cross-tenant summaries fan out
// over tenants with a bounded errgroup.
package reports
