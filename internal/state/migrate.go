package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoState is returned for a state file whose version predates v1 or
// postdates the version this binary knows how to read. Per the
// migration contract, an unknown version means "no state" rather than a
// best-effort partial read.
var ErrNoState = errors.New("no usable state: unknown schema version")

// MigratedRequirementsMarker replaces an embedded requirements body that
// an old state file carried inline, once migrated to the path-only
// model. A PersistedState.RequirementsPath holding this value has no
// requirements content a resumed run can read back — the caller should
// treat it as a terminal condition rather than silently proceeding
// without requirements.
const MigratedRequirementsMarker = "__migrated__"

// migrate brings a raw state.json payload of the given on-disk version
// up to STATEVersion, as a sequence of raw-JSON transforms rather than
// typed structs, since v1/v2 documents don't share PersistedState's
// shape closely enough to unmarshal directly into it.
func migrate(raw []byte, version int) ([]byte, error) {
	if version < 1 || version > STATEVersion {
		return nil, fmt.Errorf("%w: version %d", ErrNoState, version)
	}
	if version == STATEVersion {
		return raw, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing state for migration: %w", err)
	}

	if version < 3 {
		migrateV1V2ToV3(doc)
	}

	doc["version"] = STATEVersion
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling migrated state: %w", err)
	}
	return out, nil
}

// migrateV1V2ToV3 performs the three structural changes a v1 or v2
// document needs to become readable as a v3+ PersistedState:
//
//  1. a flat "tasks" list collapses into a single sequential batch
//  2. an inline "requirements" body is replaced by a path marker
//  3. an inline "projectContext" blob becomes a boolean "hasProjectContext"
func migrateV1V2ToV3(doc map[string]any) {
	if rawTasks, ok := doc["tasks"].([]any); ok {
		doc["batches"] = []any{
			map[string]any{
				"batchId":  "batch-migrated-1",
				"parallel": false,
				"status":   "pending",
				"tasks":    rawTasks,
			},
		}
		delete(doc, "tasks")
	}
	if _, ok := doc["currentBatchIndex"]; !ok {
		doc["currentBatchIndex"] = 0
	}

	if _, ok := doc["requirements"]; ok {
		doc["requirementsPath"] = MigratedRequirementsMarker
		delete(doc, "requirements")
	}

	if ctx, ok := doc["projectContext"]; ok {
		if s, isStr := ctx.(string); isStr {
			doc["hasProjectContext"] = s != ""
		} else {
			doc["hasProjectContext"] = ctx != nil
		}
		delete(doc, "projectContext")
	}
}
