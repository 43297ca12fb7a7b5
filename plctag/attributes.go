package plctag

import "github.com/libplctag/libplctag-sub000/plcerr"

// Attribute getters: GetIntAttribute(0, name, def) addresses
// library-global attributes; a non-zero id addresses per-tag ones.
// Unknown names return the caller's default.

// GetIntAttribute reads an integer attribute.
func GetIntAttribute(id int, name string, def int) int {
	if id == 0 {
		switch name {
		case "version_major":
			return VersionMajor
		case "version_minor":
			return VersionMinor
		case "version_patch":
			return VersionPatch
		case "debug":
			return DebugLevel()
		}
		return def
	}

	t, err := lookupTag(id)
	if err != nil {
		return def
	}
	switch name {
	case "elem_size":
		return t.ElemSize()
	case "elem_count":
		return t.ElemCount()
	case "size":
		return t.Size()
	case "read_cache_ms", "auto_sync_read_ms", "auto_sync_write_ms":
		return tagOptionInt(id, name, def)
	}
	return def
}

func tagOptionInt(id int, name string, def int) int {
	lib.mu.Lock()
	e, ok := lib.tags[id]
	lib.mu.Unlock()
	if !ok || e.t == nil {
		return def
	}
	o := e.t.Options()
	switch name {
	case "read_cache_ms":
		return o.ReadCacheMs
	case "auto_sync_read_ms":
		return o.AutoSyncReadMs
	case "auto_sync_write_ms":
		return o.AutoSyncWriteMs
	}
	return def
}

// SetIntAttribute writes an integer attribute. Only the library-global
// debug level is settable.
func SetIntAttribute(id int, name string, value int) int {
	if id == 0 && name == "debug" {
		SetDebugLevel(value)
		return StatusOK
	}
	return plcerr.NotAllowed.Code()
}
