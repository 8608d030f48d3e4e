// Package records stores completed trial sessions.
//
// Two stores are provided. SQLiteStore keeps summaries and their attempts in
// a SQLite database and answers "most recent sessions" queries. FileArchive
// writes one JSON document per completed session to a directory. Both satisfy
// the upload sink contract (Name and Send) and the service's RecordStore.
package records
