// Package api implements the read-side REST endpoints of the vitals collector.
//
// Routes:
//
//	GET    /api/v1/health                      mean score and per-state page counts
//	GET    /api/v1/pages                       every live page view
//	GET    /api/v1/pages/{id}                  one page view with metrics and diagnostics
//	DELETE /api/v1/pages/{id}                  close the page's engine and drop it
//	GET    /api/v1/pages/{id}/score            performance score only
//	GET    /api/v1/pages/{id}/recommendations  advice for poor metrics
//	GET    /api/v1/snapshot                    all live pages, as pushed on /ws/stream
//
// Pages idle longer than the store TTL are reported as not found.
package api
