// Package tenants manages tenants, the root of data isolation. Every other
// record carries a tenant id, and only system admins work across tenants.
//
// A tenant also owns its financial calendar: reports are cut per financial
// year, which runs from FinancialYearStartMonth to FinancialYearEndMonth
// and is labelled by the calendar year it ends in.
package tenants
