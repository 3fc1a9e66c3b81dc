// Package services implements the client for the remote report processor.
//
// # Job Client
//
// [JobClient] wraps the processor's REST surface:
//   - POST /api/upload : multipart upload of a JSON file, returns a task id
//   - GET /api/tasks/{id}/status : current [models.Snapshot] of a task
//   - GET /api/tasks/{id}/download/{excel|log} : artifact bytes
//   - DELETE /api/tasks/{id} : best-effort server-side cleanup
//   - GET /api/health : liveness
//
// It also derives the push channel URL (ws://…/api/ws/tasks/{id}) from the base URL.
// Requests share an optional [rate.Limiter] so a tight polling loop cannot flood the processor.
//
// # Error Handling
//
// The processor reports failures as {"detail": "..."}; that text is folded into typed errors from shared:
//   - [shared.ErrInvalidUpload] : local validation rejected the file before sending
//   - [shared.ErrUploadFailed] : the processor refused the upload
//   - [shared.ErrTaskNotFound] : 404 for a task id (expired or cleaned up)
//   - [shared.ErrArtifactNotFound] : 404 for an artifact
//   - [shared.ErrMalformedSnapshot] : a status body that does not decode
//   - [shared.ErrAPIRequest] : any other transport or HTTP failure
package services
