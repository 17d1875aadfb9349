package indexer

import (
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// decodeOBKVDocument decodes a stored document blob back into a
// field-name-keyed map so the pipeline can diff it against an incoming
// update (spec §4.3.2 step 3 "Version materialisation: decode the current
// OBKV blob using the fields-ids map").
func decodeOBKVDocument(env *store.Environment, blob []byte) (RawDocument, error) {
	fields, err := codec.DecodeOBKV(blob)
	if err != nil {
		return nil, fmt.Errorf("decode document blob: %w", err)
	}

	out := make(RawDocument, len(fields))
	names := env.Fields()
	for _, f := range fields {
		name, ok := names.Name(f.Fid)
		if !ok {
			continue // fid was recorded before a fields-map reload; skip stale entry
		}
		out[name] = json.RawMessage(f.Data)
	}
	return out, nil
}
