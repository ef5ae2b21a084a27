// Package httpclient builds the *http.Client used to reach downstream
// systems.
//
// Clients carry secure transport defaults (TLS 1.2 minimum, pooled
// connections) and a logging round tripper that:
//   - logs method, sanitized URL, status and duration of every request
//   - sets the User-Agent header
//   - propagates the invocation request id and the per-attempt
//     sub-request id stored in the request context
//
// # Usage
//
//	client, err := httpclient.New(httpclient.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	ctx = httpclient.WithRequestIDs(ctx, requestID, subRequestID)
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	resp, err := client.Do(req)
//
// Retries are deliberately absent: operations own their retry budget, and
// a second layer of retries here would multiply attempts.
package httpclient
