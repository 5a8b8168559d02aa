// Package operation holds the device operations a batch can run.
//
// Each operation implements transaction.Operation and talks to devices
// through link.Requester. One operation instance is shared by every session
// of a batch, so all of them are safe for concurrent use.
//
// Operations are built from the API's JSON description with Parse:
//
//	op, err := operation.Parse(operation.Spec{
//	    Type:    "read",
//	    Objects: []string{"1.0.1.8.0.255"},
//	})
package operation
