// Package cli provides the crmgate operator command-line interface.
//
// # Overview
//
// This package implements the `crmgate-cli` tool. It talks to the REST API
// through pkg/apiclient, so every command sees exactly the data the
// logged-in user's scope allows.
//
// # Commands
//
// login: Authenticate and store the session
//
//	crmgate-cli login --email john@speccon.co.za
//
// The password is read from --password or $CRMGATE_PASSWORD. The session
// is written to ~/.config/crmgate/session.json with mode 0600 and the
// access token is refreshed transparently while the refresh token is
// valid.
//
// whoami: Show the logged in user
//
//	crmgate-cli whoami
//
// clients: List clients in scope
//
//	crmgate-cli clients --status Prospect --page 2
//
// reassign: Move a client to another salesperson
//
//	crmgate-cli reassign --client 101 --to 6
//
// report: Financial report for a financial year
//
//	crmgate-cli report --year 2026
//	crmgate-cli report --all --json
//
// seed: Load fixture data straight into PostgreSQL (development only)
//
//	crmgate-cli seed --database-url postgres://localhost/crmgate
//
// # Global Flags
//
//	--server   API base URL, default $CRMGATE_URL
//	--session  Session file, default $CRMGATE_SESSION
//	--timeout  Request timeout
//
// # Exit Codes
//
//	0  success
//	1  usage error
//	2  not logged in or session expired
//	3  permission denied
//	4  any other failure
package cli
