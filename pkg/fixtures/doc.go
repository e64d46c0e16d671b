// Package fixtures loads reference CRM data sets from YAML.
//
// A Dataset doubles as an in-memory scope.HierarchySource and
// identity.AccountSource, which lets scope and authorization tests run
// against the same data that `crmgate-cli seed` writes to Postgres.
//
//	ds := fixtures.Speccon()
//	calc := scope.NewCalculator(ds)
package fixtures
