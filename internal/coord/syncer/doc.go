// Package syncer runs coordination passes.
//
// # Overview
//
// A pass is one full cycle:
//
//	Reader.Read ──► drift.Diff(stored, captured) ──► Dispatcher (per event)
//	                                                      │
//	observers ◄── compat cache refresh ◄── history ◄── Store.Save(captured)
//
// Every trigger context (page load, manual request, schedule, file watch)
// calls the same Coordinator.Run. There is no special-casing by trigger
// other than the tag recorded on the result.
//
// # Usage
//
//	coord, err := syncer.New(syncer.Config{
//	    Registry:   reg,
//	    Store:      store.New(database, 50),
//	    Options:    database,
//	    Dispatcher: d,
//	    AutoSync:   true,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Once per admin page load
//	req := coord.NewRequest()
//	req.OnPageLoad(ctx)
//
//	// Explicit admin request
//	result, err := coord.Run(ctx, syncer.TriggerManual)
//
// # First detection
//
// A component with no stored version produces a ChangeEvent with a nil Old
// version. It is dispatched like any other change and logged in history as
// component_detected, so that a reset re-reports every present component.
//
// # Error Handling
//
// The pass is resilient:
//
//   - Unreadable components are omitted by the reader
//   - Handler errors and panics are logged as warnings; other handlers still run
//   - A failed Save is logged; the captured snapshot is kept in memory and
//     used as the baseline for the next pass, which retries the save
//   - A failed Load falls back to the in-memory snapshot (or empty)
//
// Run only returns an error when ctx is already done.
//
// # Concurrency
//
// Passes within one process are serialized by a mutex. Separate processes
// sharing a database race; the snapshot write is a full replace, so the
// worst case is a lost delta that the next pass re-detects.
package syncer
