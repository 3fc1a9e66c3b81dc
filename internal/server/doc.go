// Package server provides HTTP routing, middleware and a local mock of the report processor.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering,
// so path wildcards such as /api/tasks/{id}/status are available through [http.Request.PathValue].
//
// # Mock Processor
//
// [Processor] simulates the remote job lifecycle in memory: an upload is queued, then reports processing
// progress at 10, 30, 70 and 90 percent, and completes with an excel report and a log. Uploads that are not
// valid JSON fail. Tasks older than the configured TTL are swept periodically.
//
// [API] exposes the processor over the same endpoints the client talks to:
//
//	GET    /api/health
//	POST   /api/upload                      multipart field "file"
//	GET    /api/tasks/{id}/status
//	GET    /api/tasks/{id}/download/{type}  type is excel or log
//	DELETE /api/tasks/{id}
//	GET    /api/ws/tasks/{id}               websocket status stream
//
// The websocket sends the current snapshot on connect and every change after it,
// then closes with code 1000 once the task is complete or failed.
//
// [Server] bundles both behind the logging middleware and is started by `mrx serve`.
package server
