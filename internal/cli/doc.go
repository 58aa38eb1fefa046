// Package cli implements the collect command-line tool.
//
// Commands:
//
//	collect form add <xform.xml>
//	collect form list
//	collect form delete <id>
//	collect instance list
//	collect instance save <form-id> <instance.xml> [--finalize]
//	collect instance delete <id>
//	collect scan
//	collect upload [ids...] [--url URL] [--ask-password]
//
// Every command opens the storage root named by --storage (or the config
// file), runs its operation on a background goroutine and prints progress
// and the final result.
package cli
