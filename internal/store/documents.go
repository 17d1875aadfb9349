package store

import "go.etcd.io/bbolt"

// PutDocument writes the OBKV-encoded blob for docid into the `documents`
// table (spec §3.2 "documents: docid (BE u32) -> OBKV blob").
func (e *Environment) PutDocument(tx *bbolt.Tx, docid uint32, blob []byte) error {
	return tx.Bucket([]byte(tableDocuments)).Put(BEUint32(docid), blob)
}

// DeleteDocument removes docid's blob from the `documents` table.
func (e *Environment) DeleteDocument(tx *bbolt.Tx, docid uint32) error {
	return tx.Bucket([]byte(tableDocuments)).Delete(BEUint32(docid))
}

// GetDocument returns the raw OBKV blob for docid, or nil if absent.
func (e *Environment) GetDocument(tx *bbolt.Tx, docid uint32) []byte {
	return tx.Bucket([]byte(tableDocuments)).Get(BEUint32(docid))
}
