// Package repositories groups the SQLite repositories of the device store.
//
// Every repository is a thin struct over dbx.DBTX, so the same code runs on
// the database handle or inside a transaction. Instants are stored as Unix
// milliseconds (see timex.Millis); lookups that find no row return
// common.ErrorNotFound.
package repositories
