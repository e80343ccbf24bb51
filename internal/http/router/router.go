// Package router assembles the HTTP route table and the middleware chain.
package router

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/aanand-mishra/records-api/internal/config"
	"github.com/aanand-mishra/records-api/internal/http/handlers/student"
	"github.com/aanand-mishra/records-api/internal/http/middleware"
	"github.com/aanand-mishra/records-api/internal/metrics"
	"github.com/aanand-mishra/records-api/internal/service/record"
)

// New returns the root handler.
//
// Route table:
//
//	GET    /records          → page of records, highest score first
//	POST   /records          → create a record
//	PUT    /records          → replace a record
//	DELETE /records          → delete a record (?id=)
//	GET    /records/exists   → 200 / 404 for ?id=
//	GET    /healthz          → store ping
//	GET    /metrics          → Prometheus exposition
//
// Every request passes through RequestID → RateLimit → Timeout before
// reaching its route; each route logs and records itself via Observe.
func New(svc *record.Service, m *metrics.Manager, cfg config.HTTPServer) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Observe(pattern, m, h))
	}

	handle("GET /records", student.GetList(svc))
	handle("POST /records", student.New(svc))
	handle("PUT /records", student.Update(svc))
	handle("DELETE /records", student.Delete(svc))
	handle("GET /records/exists", student.Exists(svc))
	handle("GET /healthz", student.Health(svc))
	mux.Handle("GET /metrics", m.Handler())

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	var h http.Handler = mux
	h = middleware.Timeout(cfg.RequestTimeout)(h)
	h = middleware.RateLimit(limiter, m)(h)
	h = middleware.RequestID(h)
	return h
}
