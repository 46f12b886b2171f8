// Package audit records every security-relevant decision in an
// append-only trail on top of the storage engine. Nothing in the
// runtime mutates or removes an entry once written; callers treat a
// failed audit write as fatal to the operation being recorded, so no
// action can appear to have happened without its entry.
package audit
