// Package errors provides the structured error type shared by every engine
// component (scheduler, indexer, query pipeline, vector subsystem).
//
// Error codes follow the external taxonomy of spec §6.5: a short machine
// code, a type bucket used for the public surface, and a severity used
// internally to decide whether a failure aborts a whole batch or only the
// offending task.
package errors

// Category is the public error type bucket (spec §6.5).
type Category string

const (
	CategoryUser     Category = "invalid_request"
	CategoryAuth     Category = "auth"
	CategorySystem   Category = "system"
	CategoryInternal Category = "internal"
)

// Severity determines how the scheduler reacts to an error.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"   // aborts the whole batch, rolls back the txn
	SeverityTask    Severity = "TASK"    // fails only the offending task
	SeverityWarning Severity = "WARNING" // degraded but completed (e.g. search cutoff)
)

// Error codes named in spec §6.5, plus the internal codes needed to
// implement §4.3.3 (indexing failure semantics) and §4.6 (embedder errors).
const (
	CodeMissingPrimaryKey = "missing_primary_key"
	CodeInvalidDocumentID = "invalid_document_id"
	CodeMissingDocumentID = "missing_document_id"
	CodeDocumentNotFound  = "document_not_found"

	CodeInvalidIndexUID   = "invalid_index_uid"
	CodeIndexNotFound     = "index_not_found"
	CodeIndexAlreadyExist = "index_already_exists"
	CodeImmutableField    = "immutable_index_uid"

	CodeInvalidFilter      = "invalid_filter"
	CodeInvalidSearchParam = "invalid_search_*"
	CodeInvalidSort        = "invalid_search_sort"

	CodeInvalidSettingsEmbedders    = "invalid_settings_embedders"
	CodeCannotDisableBinaryQuantize = "cannot_disable_binary_quantization"

	CodeMapSizeExceeded    = "database_size_limit_reached"
	CodeTooManyOpenIndexes = "too_many_open_indexes"
	CodeTooManySearches    = "too_many_search_requests"
	CodeSearchLimiterDown  = "search_limiter_down"

	CodeDatabaseCorrupt  = "database_corrupt"
	CodeVersionMismatch  = "version_mismatch"
	CodeExtractionFailed = "extraction_failed"
	CodeInternal         = "internal"

	CodeEmbedTransport = "embed_transport_error"
	CodeEmbedTemplate  = "embed_template_error"
	CodeEmbedDimension = "embed_dimension_mismatch"

	CodeTaskNotFound  = "task_not_found"
	CodeTaskCancelled = "task_cancelled"
)

var categoryByCode = map[string]Category{
	CodeMissingPrimaryKey:           CategoryUser,
	CodeInvalidDocumentID:           CategoryUser,
	CodeMissingDocumentID:           CategoryUser,
	CodeDocumentNotFound:            CategoryUser,
	CodeInvalidIndexUID:             CategoryUser,
	CodeIndexNotFound:               CategoryUser,
	CodeIndexAlreadyExist:           CategoryUser,
	CodeImmutableField:              CategoryUser,
	CodeInvalidFilter:               CategoryUser,
	CodeInvalidSearchParam:          CategoryUser,
	CodeInvalidSort:                 CategoryUser,
	CodeInvalidSettingsEmbedders:    CategoryUser,
	CodeCannotDisableBinaryQuantize: CategoryUser,
	CodeMapSizeExceeded:             CategorySystem,
	CodeTooManyOpenIndexes:          CategorySystem,
	CodeTooManySearches:             CategorySystem,
	CodeSearchLimiterDown:           CategorySystem,
	CodeDatabaseCorrupt:             CategoryInternal,
	CodeVersionMismatch:             CategoryInternal,
	CodeExtractionFailed:            CategoryInternal,
	CodeInternal:                    CategoryInternal,
	CodeEmbedTransport:              CategorySystem,
	CodeEmbedTemplate:               CategoryUser,
	CodeEmbedDimension:              CategoryUser,
	CodeTaskNotFound:                CategoryUser,
	CodeTaskCancelled:               CategoryUser,
}

var fatalCodes = map[string]struct{}{
	CodeDatabaseCorrupt: {},
	CodeVersionMismatch: {},
}

var retryableCodes = map[string]struct{}{
	CodeEmbedTransport:    {},
	CodeSearchLimiterDown: {},
}

func categoryFromCode(code string) Category {
	if cat, ok := categoryByCode[code]; ok {
		return cat
	}
	return CategoryInternal
}

func severityFromCode(code string) Severity {
	if _, ok := fatalCodes[code]; ok {
		return SeverityFatal
	}
	return SeverityTask
}

func isRetryableCode(code string) bool {
	_, ok := retryableCodes[code]
	return ok
}
