// Package manager sequences a download run. It is structured into small files
// by concern:
//
//   - manager.go: Manager type, collaborator interfaces, Run/RunOne.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - plan.go: turning a reference into a model and the versions to fetch.
//   - route.go: destination directory for a file (override, type router).
//   - batch.go: RunBatch and Summary.
//   - errors.go: error types and helpers (IsVersionMissing).
//
// Every selected file is attempted even when an earlier one fails; failures
// are logged and reported in Outcome. Cancellation of the context stops the
// run at the next step and is reported separately from failures.
package manager
