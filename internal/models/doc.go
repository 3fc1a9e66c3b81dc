// Package models defines domain entities and persistence interfaces for the mrx report-job client.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): value types mirroring the remote job processor's JSON
//   - [Snapshot] : authoritative point-in-time status of a task
//   - [ArtifactFile] : a downloadable output (Excel report or processing log)
//   - [UploadResponse] : the processor's answer to an upload
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [TaskRecord] : a local history entry for an uploaded file and its final outcome
//
// Persistent entities implement the [Model] interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
