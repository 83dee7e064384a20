// Package foxytools is a rate-limited, cached, middleware-composable HTTP
// request pipeline for clients that hit slow or throttled upstreams over
// and over, such as scrapers:
//
//   - Pacing by minimum interval or by requests per window
//   - A response cache persisted to flat YAML files (or bolt, or Redis)
//     that survives restarts and retries failing computes a bounded
//     number of times
//   - An ordered middleware pipeline (request ids, body encoding, headers,
//     status checks, logging) built from a registry of named stages
//   - Result values (package result) for callers that prefer chaining to
//     error branches
//   - Prometheus metrics and opt-in structured debug logging
//
// Typical usage:
//
//	client, err := foxytools.New(
//	    foxytools.WithURL("https://api.example.com"),
//	    foxytools.WithRateLimit(foxytools.Interval(time.Second)),
//	    foxytools.WithCache(),
//	)
//	if err != nil {
//	    return err
//	}
//	body, err := client.Raw(ctx, foxytools.Options{"path": "/items", "params": map[string]any{"page": 2}})
//
// Options given per call are merged over Config.Defaults. The cache key is
// derived from the merged options, independent of their order; transport
// settings such as timeout never take part in it. Cached entries never
// expire; remove them with Client.Cache().Delete or DeleteAll.
package foxytools
