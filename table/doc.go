// Package table provides an integer handle table over shared and weak
// handles.
//
// A table slot owns exactly one unit on a control block: a shared unit for
// slots created with InsertShared, a weak unit for InsertWeak. Inserting
// moves the caller's handle into the slot; removing releases it.
//
//	tbl := table.New[Config]()
//
//	s := ptr.Make(cfg)
//	h, err := tbl.InsertShared(&s) // s is now empty
//
//	view, ok := tbl.Shared(h)      // borrowed, counts unchanged
//	own := view.Clone()            // an independent owner
//
//	tbl.Remove(h)                  // releases the slot's unit
//
// # Handles
//
// Handle 0 is never issued. Handles of removed slots are reused, most
// recently freed first.
//
// # Observers
//
// Observers receive EventInserted and EventRemoved after the table lock is
// released, so an observer may call back into the table.
//
// # Closing
//
// Close releases every slot. Inserts into a closed table release the handle
// they were given and fail with a closed error.
package table
